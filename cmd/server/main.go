package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/motorline/auction-api/internal/activity"
	"github.com/motorline/auction-api/internal/auction"
	"github.com/motorline/auction-api/internal/auth"
	"github.com/motorline/auction-api/internal/config"
	"github.com/motorline/auction-api/internal/database"
	"github.com/motorline/auction-api/internal/ledger"
	"github.com/motorline/auction-api/internal/settlement"
	"github.com/motorline/auction-api/internal/transfer"
	"github.com/motorline/auction-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// configureLogging sets up zerolog based on the environment
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via AUCTION_DEBUG
func configureLogging(cfg *config.Config) {
	if cfg.Env != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the auction engine with graceful shutdown
// support. It wires the bid ledger, settlement engine and their
// collaborators, and starts the background lifecycle processor.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogging(cfg)

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	activityService := activity.NewService(db)
	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	shareRegistry := transfer.NewRegistry(db)

	locks := auction.NewLockTable()
	auctionService := auction.NewService(db, ledgerService, activityService, locks, cfg.CommissionRate)
	auctionHandlers := auction.NewGinHandlers(auctionService)

	settlementService := settlement.NewService(db, ledgerService, shareRegistry, activityService, locks)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Create and start the lifecycle processor: it opens bidding windows,
	// closes auctions past their end and settles them.
	processor := settlement.NewProcessor(auctionService, settlementService, cfg.ProcessorInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, auctionHandlers, settlementHandlers, ledgerHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Auction routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Auction and bidding routes
		auctions := v1.Group("/auctions")
		auctions.Use(middleware.JWTAuth(jwtSecret))
		{
			auctions.POST("", auctionHandlers.CreateAuctionHandler())
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.POST("/:auction_id/publish", auctionHandlers.PublishAuctionHandler())
			auctions.POST("/:auction_id/cancel", auctionHandlers.CancelAuctionHandler())
			auctions.POST("/:auction_id/bids", auctionHandlers.PlaceBidHandler())
			auctions.POST("/:auction_id/bids/:bid_id/cancel", auctionHandlers.CancelBidHandler())
			auctions.GET("/:auction_id/bids", auctionHandlers.GetBidStackHandler())
			auctions.GET("/:auction_id/activity", auctionHandlers.GetActivityHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/settlement/:auction_id", settlementHandlers.SettleAuctionHandler())
			internal.POST("/accounts", ledgerHandlers.CreateAccountHandler())
			internal.GET("/accounts/:account_id", ledgerHandlers.GetAccountHandler())
		}
	}
}
