package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config carries everything the server needs at startup. Values come from
// environment variables prefixed AUCTION_ (e.g. AUCTION_PORT), an optional
// config file, and defaults, in that order of precedence.
type Config struct {
	Env               string        `mapstructure:"env"`
	Port              string        `mapstructure:"port"`
	DatabasePath      string        `mapstructure:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	CommissionRate    float64       `mapstructure:"commission_rate"`
	ProcessorInterval time.Duration `mapstructure:"processor_interval"`
	Debug             bool          `mapstructure:"debug"`
}

// Load reads configuration. The --config flag points at an optional file;
// missing files are not an error, the defaults and environment cover
// everything.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("auction-api", pflag.ContinueOnError)
	configFile := flags.String("config", "", "path to config file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "auction.db")
	v.SetDefault("jwt_secret", "auction-secret-key")
	v.SetDefault("commission_rate", 0.05)
	v.SetDefault("processor_interval", 15*time.Second)
	v.SetDefault("debug", false)

	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
