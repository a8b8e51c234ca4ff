package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"twstock/internal/economy"
	"twstock/internal/fetch"
	"twstock/internal/handlers"
	"twstock/internal/names"
	"twstock/internal/portfolio"
	"twstock/internal/quote"
	"twstock/internal/trade"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Load .env if present; fine if missing in production
	_ = godotenv.Load()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Fatalf("could not create data dir %s: %v", dataDir, err)
	}

	fetcher := fetch.New(logger)
	quotes := quote.NewService(fetcher, os.Getenv("QUOTE_API_URL"), logger)

	resolver := names.New(filepath.Join(dataDir, "stock_names.env"), fetcher,
		os.Getenv("TWSE_ISIN_URL"), os.Getenv("TPEX_ISIN_URL"), logger)
	if err := resolver.Load(); err != nil {
		logger.Warnf("could not load stock name cache: %v", err)
	}
	resolver.EnsureBackgroundFetch(context.Background())

	store, err := portfolio.NewStore(filepath.Join(dataDir, "player_holdings.yml"), logger)
	if err != nil {
		logger.Fatalf("could not load holdings: %v", err)
	}

	starting := decimal.NewFromInt(10_000)
	if v := os.Getenv("STARTING_BALANCE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.Sign() >= 0 {
			starting = d
		}
	}
	eco := economy.NewInMemory(starting, logger)

	trades := trade.NewOrchestrator(quotes, eco, store, logger)
	h := handlers.NewHandler(store, trades, quotes, resolver, eco, logger)

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "names_ready": resolver.Ready()})
	})

	r.GET("/quote/:symbol", h.GetQuote)
	r.GET("/portfolio/:player", h.GetPortfolio)
	r.GET("/portfolio/:player/overview", h.GetOverview)
	r.GET("/portfolio/:player/positions/:symbol", h.GetPosition)
	r.POST("/portfolio/:player/stocks", h.AddStock)
	r.POST("/trade/buy", h.Buy)
	r.POST("/trade/sell", h.Sell)
	r.POST("/trade/sell-all", h.SellAll)
	r.POST("/portfolio/:player/positions/:symbol/sell-prompt", h.ArmSell)
	r.POST("/players/:player/input", h.PostInput)
	r.POST("/players/:player/pending-symbol", h.ArmNewSymbol)
	r.POST("/admin/reload", h.Reload)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Infof("server starting on :%s", port)
	r.Run(fmt.Sprintf(":" + port))
}
