// Package scraper builds the product dataset from a storefront collection page.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/safehttp"
)

const (
	// DefaultMaxProducts caps a single scrape.
	DefaultMaxProducts = 100

	// UnknownCategory is used when a card carries no category label.
	UnknownCategory = "Unknown"

	userAgent = "Mozilla/5.0 (compatible; caviaar-shopping-assistant/1.0)"
)

// Card selectors for the storefront theme.
const (
	selCard        = "li.grid__item"
	selName        = ".card__heading"
	selPrice       = ".price__regular .price-item"
	selDescription = ".card__information p"
	selImage       = "img"
	selLink        = "a"
	selCategory    = ".motion-reduce"
)

type Scraper struct {
	httpClient  *http.Client
	maxProducts int
	logger      *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func WithMaxProducts(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxProducts = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient:  safehttp.NewClient(30 * time.Second),
		maxProducts: DefaultMaxProducts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape fetches pageURL and parses its product cards.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) ([]domain.Product, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: unexpected status %d", resp.StatusCode)
	}

	return s.Parse(resp.Body, base)
}

// Parse extracts product cards from an HTML document. Relative links and
// image sources are resolved against base. Cards missing a name, price, image
// or link are skipped.
func (s *Scraper) Parse(r io.Reader, base *url.URL) ([]domain.Product, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	cards := doc.Find(selCard)
	s.logger.Info("found product containers", slog.Int("count", cards.Length()))

	products := make([]domain.Product, 0, min(cards.Length(), s.maxProducts))
	skipped := 0
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		p, ok := parseCard(card, base)
		if !ok {
			skipped++
			return true
		}
		products = append(products, p)
		return len(products) < s.maxProducts
	})

	if skipped > 0 {
		s.logger.Warn("skipped cards with missing elements", slog.Int("skipped", skipped))
	}
	return products, nil
}

func parseCard(card *goquery.Selection, base *url.URL) (domain.Product, bool) {
	name := text(card.Find(selName))
	price := text(card.Find(selPrice))
	img, hasImg := card.Find(selImage).First().Attr("src")
	href, hasLink := card.Find(selLink).First().Attr("href")
	if name == "" || price == "" || !hasImg || !hasLink {
		return domain.Product{}, false
	}

	category := UnknownCategory
	card.Find(selCategory).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if t := text(sel); t != "" {
			category = t
			return false
		}
		return true
	})

	return domain.Product{
		Name:        name,
		Price:       price,
		Description: text(card.Find(selDescription)),
		ImageURL:    resolve(base, img),
		URL:         resolve(base, href),
		Category:    category,
	}, true
}

// text is the whitespace-collapsed text of the first match.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.First().Text()), " ")
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
