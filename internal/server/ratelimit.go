package server

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// quotaContextKey is the context key for quota info
type quotaContextKey struct{}

// QuotaInfo is the daily token quota state reported in response headers.
type QuotaInfo struct {
	TokensLimit     int
	TokensRemaining int
	// TokensReset is when the counter rolls over.
	TokensReset time.Time
}

// WithQuotaSlot prepares ctx so a handler can report quota with SetQuota.
func WithQuotaSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, quotaContextKey{}, &QuotaInfo{TokensLimit: -1})
}

// SetQuota records quota info for QuotaHeadersMiddleware. No-op without the middleware.
func SetQuota(ctx context.Context, info QuotaInfo) {
	if slot, ok := ctx.Value(quotaContextKey{}).(*QuotaInfo); ok {
		*slot = info
	}
}

// GetQuota retrieves quota info from context.
// Returns nil if none has been set.
func GetQuota(ctx context.Context) *QuotaInfo {
	if q, ok := ctx.Value(quotaContextKey{}).(*QuotaInfo); ok && q.TokensLimit >= 0 {
		return q
	}
	return nil
}

// QuotaHeadersMiddleware writes x-ratelimit-*-tokens headers from the quota
// info a handler stored with SetQuota before writing its response.
func QuotaHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithQuotaSlot(r.Context()))
		wrapped := &quotaResponseWriter{
			ResponseWriter: w,
			request:        r,
		}
		next.ServeHTTP(wrapped, r)
	})
}

// quotaResponseWriter wraps ResponseWriter to write quota headers.
type quotaResponseWriter struct {
	http.ResponseWriter
	request      *http.Request
	wroteHeaders bool
}

func (rw *quotaResponseWriter) WriteHeader(code int) {
	rw.writeQuotaHeaders()
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *quotaResponseWriter) Write(b []byte) (int, error) {
	rw.writeQuotaHeaders()
	return rw.ResponseWriter.Write(b)
}

func (rw *quotaResponseWriter) writeQuotaHeaders() {
	if rw.wroteHeaders {
		return
	}
	rw.wroteHeaders = true

	q := GetQuota(rw.request.Context())
	if q == nil {
		return
	}

	h := rw.Header()
	h.Set("x-ratelimit-limit-tokens", strconv.Itoa(q.TokensLimit))
	h.Set("x-ratelimit-remaining-tokens", strconv.Itoa(q.TokensRemaining))
	if !q.TokensReset.IsZero() {
		h.Set("x-ratelimit-reset-tokens", q.TokensReset.UTC().Format(time.RFC3339))
	}
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher.
func (rw *quotaResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
