package domain

import "time"

// AnonymousIdentity is used for quota and history when a request carries no session id.
const AnonymousIdentity = "anonymous"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn as persisted in a session.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is the conversation state for one session id.
type Session struct {
	ID           string            `json:"session_id"`
	Messages     []Message         `json:"messages"`
	Context      map[string]string `json:"context"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// Recent returns at most limit of the newest messages, oldest first.
// A non-positive limit returns no messages.
func (s *Session) Recent(limit int) []Message {
	return RecentWindow(s.Messages, limit)
}

// RecentWindow copies the trailing window of msgs, preserving chronological order.
func RecentWindow(msgs []Message, limit int) []Message {
	if limit <= 0 || len(msgs) == 0 {
		return []Message{}
	}
	start := 0
	if len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}

// Intent is the closed classification label assigned to a query.
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentNonEcommerce     Intent = "non_ecommerce"
	IntentSizeGuide        Intent = "size_guide"
	IntentProducts         Intent = "products"
	IntentPayments         Intent = "payments"
	IntentReturns          Intent = "returns"
	IntentShipping         Intent = "shipping"
	IntentOffers           Intent = "offers"
	IntentGeneralEcommerce Intent = "general_ecommerce"
)

// Intents lists every intent category in declaration order.
var Intents = []Intent{
	IntentGreeting,
	IntentNonEcommerce,
	IntentSizeGuide,
	IntentProducts,
	IntentPayments,
	IntentReturns,
	IntentShipping,
	IntentOffers,
	IntentGeneralEcommerce,
}

// Product is one record of the scraped product dataset.
type Product struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
	URL         string `json:"url"`
	Category    string `json:"category,omitempty"`
}
