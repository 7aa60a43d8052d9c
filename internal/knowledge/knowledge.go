// Package knowledge serves curated reference content keyed by intent.
package knowledge

import (
	"strings"
	"sync/atomic"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// DefaultSiteURL is the storefront the canned content links to.
const DefaultSiteURL = "https://caviaarmode.com"

// FallbackInfo is returned for intents with no curated entry.
const FallbackInfo = "I can help with questions about products, sizing, payments, returns, or shipping."

// Entry is the reference payload for one intent.
type Entry struct {
	Info     string           `json:"info,omitempty"`
	Policy   string           `json:"policy,omitempty"`
	Process  string           `json:"process,omitempty"`
	Methods  []string         `json:"methods,omitempty"`
	Products []domain.Product `json:"shirts,omitempty"`
	General  string           `json:"general,omitempty"`
	Redirect string           `json:"redirect,omitempty"`
}

// Catalog is the read-only intent -> entry table. Product listings can be
// swapped wholesale (dataset reload); entries are never mutated in place.
type Catalog struct {
	siteURL string
	entries atomic.Pointer[map[domain.Intent]Entry]
}

// NewCatalog builds the curated table for siteURL.
func NewCatalog(siteURL string) *Catalog {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	siteURL = strings.TrimSuffix(siteURL, "/")

	c := &Catalog{siteURL: siteURL}
	entries := curated(siteURL)
	c.entries.Store(&entries)
	return c
}

// Lookup returns the entry for intent, or the generic fallback.
func (c *Catalog) Lookup(intent domain.Intent) Entry {
	entries := *c.entries.Load()
	if e, ok := entries[intent]; ok {
		return e
	}
	return Entry{Info: FallbackInfo}
}

// Products returns the current product listing.
func (c *Catalog) Products() []domain.Product {
	return c.Lookup(domain.IntentProducts).Products
}

// SetProducts replaces the product listing. An empty list keeps the curated one.
func (c *Catalog) SetProducts(products []domain.Product) {
	if len(products) == 0 {
		return
	}
	for {
		old := c.entries.Load()
		next := make(map[domain.Intent]Entry, len(*old))
		for k, v := range *old {
			next[k] = v
		}
		e := next[domain.IntentProducts]
		e.Products = append([]domain.Product(nil), products...)
		next[domain.IntentProducts] = e
		if c.entries.CompareAndSwap(old, &next) {
			return
		}
	}
}

// SiteURL returns the storefront base URL.
func (c *Catalog) SiteURL() string {
	return c.siteURL
}

func curated(site string) map[domain.Intent]Entry {
	return map[domain.Intent]Entry{
		domain.IntentSizeGuide: {
			Info: "Here's our comprehensive size guide to help you find the perfect fit:\n" +
				"Shirts & Tops:\n" +
				"Small: Chest 34-36\", Waist 28-30\"\n" +
				"Medium: Chest 38-40\", Waist 32-34\"\n" +
				"Large: Chest 42-44\", Waist 36-38\"\n" +
				"XL: Chest 46-48\", Waist 40-42\"\n" +
				"Tips: For the best fit, make sure to measure yourself while wearing light clothing.",
			Redirect: site + "/size-guide",
		},
		domain.IntentProducts: {
			Products: []domain.Product{
				{
					Name:        "Classic White Cotton Shirt",
					Price:       "₹2,499",
					Description: "Premium cotton blend, perfect for formal and casual wear",
					URL:         site + "/products/classic-white-shirt",
				},
				{
					Name:        "Striped Casual Shirt",
					Price:       "₹2,199",
					Description: "Breathable fabric with modern navy stripes",
					URL:         site + "/products/striped-casual-shirt",
				},
				{
					Name:        "Black Formal Shirt",
					Price:       "₹2,799",
					Description: "Elegant black shirt for professional occasions",
					URL:         site + "/products/black-formal-shirt",
				},
			},
			General:  "Explore our curated collection of premium shirts designed for modern style and comfort.",
			Redirect: site + "/collections/shirts",
		},
		domain.IntentPayments: {
			Methods:  []string{"Credit Card", "Debit Card", "PayPal", "UPI", "Net Banking"},
			Info:     "We accept all major payment methods for secure transactions.",
			Redirect: site + "/payment-methods",
		},
		domain.IntentReturns: {
			Policy:   "Easy 15-day return policy. Items must be unused with original tags.",
			Process:  "Contact our support team or initiate return from your account.",
			Redirect: site + "/return-policy",
		},
		domain.IntentShipping: {
			Info:     "All orders will be dispatched within 2-3 days of placement. Express delivery: 1-2 business days.",
			Redirect: site + "/shipping-policy",
		},
		domain.IntentOffers: {
			Info:     "Sign up for our newsletter to get exclusive deals and early access to sales.",
			Redirect: site,
		},
		domain.IntentGreeting: {
			Info: "Hello! 👋 I'm Caviaar Mode's shopping assistant. Ask me about our products, sizing, payments, returns or shipping and I'll be happy to help.",
		},
	}
}
