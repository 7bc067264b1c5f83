package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motorline/auction-api/internal/activity"
	"github.com/motorline/auction-api/internal/auction"
	"github.com/motorline/auction-api/internal/auth"
	"github.com/motorline/auction-api/internal/database"
	"github.com/motorline/auction-api/internal/ledger"
	"github.com/motorline/auction-api/internal/settlement"
	"github.com/motorline/auction-api/internal/transfer"
	"github.com/motorline/auction-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numBidders     = 5
	bidsPerBidder  = 8
	serverAddress  = "http://localhost:8080"
	jwtSecret      = "simulation-secret-key"
	commissionRate = 0.05

	sellerAccount  = "SELLER_1"
	offeringID     = "OFFER_VIN_4Y1SL65848Z411439"
	startingCents  = int64(1_500_000) // $15,000.00
	reserveCents   = int64(2_000_000) // $20,000.00
	bidderFloat    = int64(10_000_000)
	auctionSeconds = 20
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the auction API
// It holds one JWT token per simulated participant so each bid carries
// a distinct bidder identity
type simulationClient struct {
	baseURL string
	tokens  map[string]string
	client  *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates every participant with the API and prepares
// performance tracking
func newSimulationClient(participants []string) (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		tokens:  make(map[string]string),
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"create":  {name: "Create Auction"},
			"publish": {name: "Publish Auction"},
			"bid":     {name: "Place Bid"},
			"stack":   {name: "Bid Stack"},
			"settle":  {name: "Settle Auction"},
		},
	}

	for _, clientID := range participants {
		token, err := sc.authenticate(clientID)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate %s: %w", clientID, err)
		}
		sc.tokens[clientID] = token
	}

	return sc, nil
}

// record captures the duration of a call under the stats mutex so
// concurrent bidder workers do not race on the shared slices
func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

// authenticate performs API authentication for one participant and
// returns a JWT token. The API key doubles as the client ID.
func (sc *simulationClient) authenticate(clientID string) (string, error) {
	start := time.Now()
	failed := false
	defer func() {
		sc.record("auth", start, failed)
	}()

	credentials := map[string]string{
		"api_key":    clientID,
		"api_secret": clientID + "-secret",
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		failed = true
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		failed = true
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		failed = true
		return "", err
	}

	return result.Data.Token, nil
}

// doJSON performs an authenticated request and decodes the standard
// response envelope into out (which may be nil for fire-and-forget calls)
func (sc *simulationClient) doJSON(clientID, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.tokens[clientID]))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

// createAuction submits a new auction listing as the seller
// Returns the auction ID on success
func (sc *simulationClient) createAuction(req *auction.CreateAuctionRequest) (string, error) {
	start := time.Now()
	failed := false
	defer func() {
		sc.record("create", start, failed)
	}()

	var result struct {
		AuctionID string `json:"auction_id"`
	}
	if err := sc.doJSON(sellerAccount, "POST", "/api/v1/auctions", req, &result); err != nil {
		failed = true
		return "", err
	}
	if result.AuctionID == "" {
		failed = true
		return "", fmt.Errorf("no auction ID in response")
	}
	return result.AuctionID, nil
}

// publishAuction moves a draft auction onto the schedule
func (sc *simulationClient) publishAuction(auctionID string) error {
	start := time.Now()
	failed := false
	defer func() {
		sc.record("publish", start, failed)
	}()

	err := sc.doJSON(sellerAccount, "POST", fmt.Sprintf("/api/v1/auctions/%s/publish", auctionID), nil, nil)
	if err != nil {
		failed = true
	}
	return err
}

// placeBid submits or raises a bid for one bidder
func (sc *simulationClient) placeBid(clientID, auctionID string, amountCents int64) (*auction.PlaceBidResult, error) {
	start := time.Now()
	failed := false
	defer func() {
		sc.record("bid", start, failed)
	}()

	payload := auction.PlaceBidRequest{
		AmountCents: amountCents,
		Quantity:    1,
	}

	var result auction.PlaceBidResult
	if err := sc.doJSON(clientID, "POST", fmt.Sprintf("/api/v1/auctions/%s/bids", auctionID), payload, &result); err != nil {
		failed = true
		return nil, err
	}
	return &result, nil
}

// getBidStack retrieves the public view of the auction's bids
func (sc *simulationClient) getBidStack(auctionID string) (*auction.BidStack, error) {
	start := time.Now()
	failed := false
	defer func() {
		sc.record("stack", start, failed)
	}()

	var stack auction.BidStack
	if err := sc.doJSON(sellerAccount, "GET", fmt.Sprintf("/api/v1/auctions/%s/bids", auctionID), nil, &stack); err != nil {
		failed = true
		return nil, err
	}
	return &stack, nil
}

// settleAuction triggers settlement for an ended auction
// Returns the settlement outcome on success
func (sc *simulationClient) settleAuction(auctionID string) (*settlement.SettlementResult, error) {
	start := time.Now()
	failed := false
	defer func() {
		sc.record("settle", start, failed)
	}()

	var result settlement.SettlementResult
	if err := sc.doJSON(sellerAccount, "POST", fmt.Sprintf("/api/v1/internal/settlement/%s", auctionID), nil, &result); err != nil {
		failed = true
		return nil, err
	}
	return &result, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the auction simulation
// It starts a local API server, seeds one seller and several funded
// bidders, runs a short live auction with a late sniping bid, then
// drives lifecycle and settlement
func main() {
	participants := []string{sellerAccount}
	for i := 0; i < numBidders; i++ {
		participants = append(participants, fmt.Sprintf("BIDDER_%d", i))
	}

	// Start the server in a goroutine
	backend, err := startServer(participants)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient(participants)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Create and publish a short auction with anti-sniping extensions
	now := time.Now()
	end := now.Add(auctionSeconds * time.Second)
	reserve := reserveCents
	createReq := &auction.CreateAuctionRequest{
		OfferingID:             offeringID,
		Kind:                   "COMMITTED_OFFERS",
		StartingPriceCents:     startingCents,
		ReservePriceCents:      &reserve,
		QuantityOffered:        1,
		VisibleFrom:            now,
		BiddingOpensAt:         now,
		ScheduledEnd:           end,
		ExtensionEnabled:       true,
		ExtensionThresholdSecs: 5,
		ExtensionDurationSecs:  5,
		MaxExtensions:          2,
	}

	auctionID, err := simClient.createAuction(createReq)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auction")
	}
	if err := simClient.publishAuction(auctionID); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish auction")
	}

	// Open the bidding window immediately
	backend.processor.Sweep(time.Now())
	log.Info().
		Str("auction_id", auctionID).
		Time("scheduled_end", end).
		Msg("Auction live, starting bidders")

	// Track per-bidder outcomes
	type bidderOutcome struct {
		bids     int
		rejected int
		highBids int
	}
	outcomes := make([]bidderOutcome, numBidders)

	var wg sync.WaitGroup
	for i := 0; i < numBidders; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			clientID := fmt.Sprintf("BIDDER_%d", workerID)
			for j := 0; j < bidsPerBidder; j++ {
				// Escalate from the starting price; random spread keeps
				// bidders leapfrogging each other
				amount := startingCents + int64(rand.Intn(8_00_000)) + int64(j)*1_50_000
				result, err := simClient.placeBid(clientID, auctionID, amount)
				if err != nil {
					// Bids below the current high are rejected by design
					// of the strict-increase rule; count and carry on
					outcomes[workerID].rejected++
					log.Debug().Err(err).Str("bidder", clientID).Msg("Bid rejected")
				} else {
					outcomes[workerID].bids++
					if result.IsHighBid {
						outcomes[workerID].highBids++
					}
					log.Info().
						Str("bidder", clientID).
						Str("bid_id", result.BidID).
						Int64("amount_cents", amount).
						Bool("is_high_bid", result.IsHighBid).
						Msg("Bid placed")
				}
				time.Sleep(time.Duration(rand.Intn(400)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	// One late snipe inside the extension threshold
	time.Sleep(time.Until(end.Add(-2 * time.Second)))
	stack, err := simClient.getBidStack(auctionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch bid stack")
	}
	snipe := stack.HighBidCents + 5_00_000
	if _, err := simClient.placeBid("BIDDER_0", auctionID, snipe); err != nil {
		log.Warn().Err(err).Msg("Snipe bid rejected")
	} else {
		log.Info().Int64("amount_cents", snipe).Msg("Snipe bid placed, auction should extend")
	}

	// Let the (possibly extended) window run out, then close and settle
	deadline := time.Now().Add(auctionSeconds * time.Second)
	for time.Now().Before(deadline) {
		backend.processor.Sweep(time.Now())
		a, err := backend.auctions.GetAuction(auctionID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load auction")
		}
		if a.Status == "ENDED" || a.Status == "COMPLETED" || a.Status == "NO_SALE" {
			break
		}
		time.Sleep(time.Second)
	}

	result, err := simClient.settleAuction(auctionID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to settle auction")
	}

	// Print summary
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚗 AUCTION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	finalStack, _ := simClient.getBidStack(auctionID)
	totalBids := 0
	for _, o := range outcomes {
		totalBids += o.bids
	}

	fmt.Printf(`
📊 Auction Outcome
------------------
Result:           %s
Winner:           %s
Final Price:      $%.2f
Trade ID:         %s
Accepted Bids:    %d
Committed Total:  $%.2f
`, result.Result, result.WinnerID, float64(result.FinalPriceCents)/100,
		result.TradeID, totalBids, float64(finalStack.TotalCommittedCents)/100)

	fmt.Println("\n📈 Bidder Activity")
	fmt.Println("------------------")
	for i, o := range outcomes {
		barLength := 0
		if totalBids > 0 {
			barLength = o.bids * 20 / totalBids
		}
		bar := strings.Repeat("█", barLength)
		fmt.Printf("BIDDER_%d: %s (%d accepted, %d rejected, %d times high)\n",
			i, bar, o.bids, o.rejected, o.highBids)
	}

	// Verify cash conservation: every non-winning reservation must be
	// back in its bidder's available balance
	fmt.Println("\n💰 Ledger Balances")
	fmt.Println("------------------")
	for _, p := range participants {
		summary, err := backend.cash.GetSummary(p)
		if err != nil {
			log.Error().Err(err).Str("account", p).Msg("Failed to read account")
			continue
		}
		fmt.Printf("%-10s balance=$%.2f held=$%.2f available=$%.2f\n",
			p, float64(summary.BalanceCents)/100, float64(summary.HeldCents)/100,
			float64(summary.AvailableCents)/100)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Str("auction_id", auctionID).
		Str("result", result.Result).
		Str("winner_id", result.WinnerID).
		Int64("final_price_cents", result.FinalPriceCents).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// backendServices exposes the in-process service handles the simulation
// needs for seeding and lifecycle control
type backendServices struct {
	cash      *ledger.Service
	shares    *transfer.Registry
	auctions  *auction.Service
	processor *settlement.Processor
}

// startServer initializes and starts the auction API server
// Sets up all required services, handlers and routes, seeds the cash
// ledger and the seller's position, and returns service handles
func startServer(participants []string) (*backendServices, error) {
	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService(jwtSecret)
	activityService := activity.NewService(db)
	ledgerService := ledger.NewService(db)
	shareRegistry := transfer.NewRegistry(db)
	locks := auction.NewLockTable()
	auctionService := auction.NewService(db, ledgerService, activityService, locks, commissionRate)
	settlementService := settlement.NewService(db, ledgerService, shareRegistry, activityService, locks)
	processor := settlement.NewProcessor(auctionService, settlementService, time.Minute)

	// Register credentials and fund every participant
	for _, clientID := range participants {
		authService.RegisterAPICredentials(clientID, clientID+"-secret")
		if _, err := ledgerService.OpenAccount(clientID, bidderFloat); err != nil {
			return nil, fmt.Errorf("failed to open account %s: %w", clientID, err)
		}
	}

	// The seller holds the vehicle being auctioned
	if err := shareRegistry.Grant(sellerAccount, offeringID, 1); err != nil {
		return nil, fmt.Errorf("failed to grant seller position: %w", err)
	}

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	auctionHandlers := auction.NewGinHandlers(auctionService)
	settlementHandlers := settlement.NewGinHandlers(settlementService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	// Setup routes
	setupRoutes(router, authHandlers, auctionHandlers, settlementHandlers, ledgerHandlers)

	// Start the server
	go func() {
		if err := router.Run(":8080"); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	return &backendServices{
		cash:      ledgerService,
		shares:    shareRegistry,
		auctions:  auctionService,
		processor: processor,
	}, nil
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality; the internal routes reuse the JWT
// middleware since the simulation has no internal network boundary
func setupRoutes(
	router *gin.Engine,
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

		// Internal routes
		internal := v1.Group("/internal")
		internal.Use(middleware.JWTAuth(jwtSecret))
		{
			internal.POST("/settlement/:auction_id", settlementHandlers.SettleAuctionHandler())
			internal.POST("/accounts", ledgerHandlers.CreateAccountHandler())
			internal.GET("/accounts/:account_id", ledgerHandlers.GetAccountHandler())
		}
	}
}
