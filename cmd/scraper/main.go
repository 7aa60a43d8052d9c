package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/caviaarmode/shopping-assistant/internal/config"
	"github.com/caviaarmode/shopping-assistant/internal/knowledge"
	"github.com/caviaarmode/shopping-assistant/internal/scraper"
)

func main() {
	configPath := flag.String("config", config.DefaultFile, "config file path")
	pageURL := flag.String("url", "", "collection page to scrape (overrides scraper.url)")
	output := flag.String("output", "", "dataset file to write (overrides scraper.output)")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *pageURL != "" {
		cfg.Scraper.URL = *pageURL
	}
	if *output != "" {
		cfg.Scraper.Output = *output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := scraper.New(
		scraper.WithMaxProducts(cfg.Scraper.MaxProducts),
		scraper.WithLogger(logger),
	)

	products, err := s.Scrape(ctx, cfg.Scraper.URL)
	if err != nil {
		log.Fatalf("Scrape failed: %v", err)
	}
	if len(products) == 0 {
		log.Fatalf("No products found at %s", cfg.Scraper.URL)
	}

	if err := knowledge.SaveProducts(cfg.Scraper.Output, products); err != nil {
		log.Fatalf("Failed to save products: %v", err)
	}

	fmt.Printf("Scraped %d products:\n", len(products))
	for _, p := range products[:min(5, len(products))] {
		fmt.Printf("  %s  %s  %s\n", p.Name, p.Price, p.URL)
	}
	fmt.Printf("Data saved to %s\n", cfg.Scraper.Output)
}
