// Package classifier maps free-text shopping queries to intent categories.
//
// Classification walks an ordered rule list and returns the intent of the
// first rule that matches. Matching is case-insensitive substring
// containment, so rule order is part of the contract: a query that contains
// both a greeting and a product word is a greeting.
package classifier

import (
	"strings"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

var (
	GreetingKeywords = []string{
		"hello", "hi", "hey", "good morning", "good evening",
		"how are you", "whats up", "how's it going",
	}

	EcommerceKeywords = []string{
		"shirt", "product", "clothing", "dress", "pants", "jacket", "shoes", "accessory",
		"size", "fit", "color", "material", "style", "collection", "catalog",
		"buy", "purchase", "price", "cost", "discount", "sale", "offer", "deal",
		"cart", "checkout", "wishlist", "recommend", "suggest",
		"order", "track", "shipping", "delivery", "dispatch", "arrive", "when",
		"status", "cancel", "modify",
		"payment", "pay", "card", "upi", "paypal", "transaction", "refund", "bill",
		"return", "exchange", "replace", "defect", "wrong", "policy",
		"support", "help", "contact", "complaint",
		"account", "profile", "address", "phone", "email", "login", "register",
		"store", "website", "caviaar", "brand", "quality", "review", "rating",
	}

	SizeKeywords     = []string{"size", "guide", "fit", "measurement"}
	ProductKeywords  = []string{"shirt", "suggest", "recommend", "product", "collection"}
	PaymentKeywords  = []string{"payment", "pay", "method", "card", "upi"}
	ReturnKeywords   = []string{"return", "exchange", "refund", "policy"}
	ShippingKeywords = []string{"shipping", "delivery", "ship", "dispatch"}
	OfferKeywords    = []string{"offer", "discount", "deal", "coupon", "sale"}
)

// Rule assigns Intent when Match reports true for the lower-cased query.
type Rule struct {
	Name   string
	Intent domain.Intent
	Match  func(lowered string) bool
}

// Classifier evaluates rules top to bottom; Fallback applies when none match.
type Classifier struct {
	rules    []Rule
	fallback domain.Intent
}

// New builds a classifier from an explicit rule list.
func New(rules []Rule, fallback domain.Intent) *Classifier {
	return &Classifier{rules: rules, fallback: fallback}
}

// Default returns the storefront classifier.
func Default() *Classifier {
	return New(DefaultRules(), domain.IntentGeneralEcommerce)
}

// DefaultRules returns the storefront rules in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "greeting", Intent: domain.IntentGreeting, Match: ContainsAny(GreetingKeywords)},
		{Name: "ecommerce_gate", Intent: domain.IntentNonEcommerce, Match: ContainsNone(EcommerceKeywords)},
		{Name: "size_guide", Intent: domain.IntentSizeGuide, Match: ContainsAny(SizeKeywords)},
		{Name: "products", Intent: domain.IntentProducts, Match: ContainsAny(ProductKeywords)},
		{Name: "payments", Intent: domain.IntentPayments, Match: ContainsAny(PaymentKeywords)},
		{Name: "returns", Intent: domain.IntentReturns, Match: ContainsAny(ReturnKeywords)},
		{Name: "shipping", Intent: domain.IntentShipping, Match: ContainsAny(ShippingKeywords)},
		{Name: "offers", Intent: domain.IntentOffers, Match: ContainsAny(OfferKeywords)},
	}
}

// Classify returns exactly one intent for any input.
func (c *Classifier) Classify(query string) domain.Intent {
	lowered := strings.ToLower(query)
	for _, rule := range c.rules {
		if rule.Match(lowered) {
			return rule.Intent
		}
	}
	return c.fallback
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// IsEcommerce reports whether the query passes the e-commerce keyword gate.
func IsEcommerce(query string) bool {
	return ContainsAny(EcommerceKeywords)(strings.ToLower(query))
}

// ContainsAny matches when any keyword is a substring.
func ContainsAny(keywords []string) func(string) bool {
	return func(s string) bool {
		for _, kw := range keywords {
			if strings.Contains(s, kw) {
				return true
			}
		}
		return false
	}
}

// ContainsNone matches when no keyword is a substring.
func ContainsNone(keywords []string) func(string) bool {
	match := ContainsAny(keywords)
	return func(s string) bool {
		return !match(s)
	}
}
