package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"twstock/internal/fetch"
	"twstock/internal/names"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// namesync scrapes both exchange symbol directories and rewrites the stock
// name cache file. Run it when the cache is stale or was deleted; the server
// picks the file up on /admin/reload or its next start.
func main() {
	godotenv.Load()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("could not create data dir %s: %v", dataDir, err)
	}
	file := filepath.Join(dataDir, "stock_names.env")

	logger := logrus.New()
	resolver := names.New(file, fetch.New(logger),
		os.Getenv("TWSE_ISIN_URL"), os.Getenv("TPEX_ISIN_URL"), logger)
	if err := resolver.Load(); err != nil {
		log.Fatalf("could not load existing cache: %v", err)
	}
	before := resolver.Len()

	fmt.Printf("Fetching symbol directories into %s (%d names cached)...\n", file, before)
	resolver.FetchAll(context.Background())

	after := resolver.Len()
	if after == 0 {
		log.Fatal("no names fetched; directories unreachable or format changed")
	}
	fmt.Printf("Done: %d names cached (%d new or updated)\n", after, after-before)
}
