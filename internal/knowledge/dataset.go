package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// LoadProducts reads a product dataset written by the scraper.
func LoadProducts(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products %s: %w", path, err)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode products %s: %w", path, err)
	}

	kept := products[:0]
	for _, p := range products {
		if p.Name == "" {
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}

// SaveProducts writes a product dataset as a flat JSON array.
func SaveProducts(path string, products []domain.Product) error {
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write products %s: %w", path, err)
	}
	return nil
}

// Watch reloads the product listing whenever path is rewritten.
// It returns once the watcher is registered; reloading runs until ctx is done.
func (c *Catalog) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	logger.Info("watching product dataset for changes", slog.String("path", path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				products, err := LoadProducts(path)
				if err != nil {
					logger.Error("failed to reload products",
						slog.String("error", err.Error()),
						slog.String("path", path))
					continue
				}
				c.SetProducts(products)
				logger.Info("product dataset reloaded",
					slog.String("path", path),
					slog.Int("products", len(products)))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("product watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
