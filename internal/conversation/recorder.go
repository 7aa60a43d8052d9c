package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/caviaarmode/shopping-assistant/internal/api/middleware"
	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// PersistTimeout bounds a best-effort write detached from the request.
const PersistTimeout = 5 * time.Second

// Record appends msgs to the session and logs on failure without failing the request path.
// The write outlives a disconnected client but not PersistTimeout.
func Record(ctx context.Context, store Store, sessionID string, msgs ...domain.Message) error {
	if store == nil || len(msgs) == 0 {
		return nil
	}

	persistCtx, cancel := buildPersistenceContext(ctx, PersistTimeout)
	defer cancel()

	reqID := middleware.GetRequestID(persistCtx)
	if reqID != "" {
		for i := range msgs {
			if msgs[i].Metadata == nil {
				msgs[i].Metadata = map[string]any{}
			}
			if _, ok := msgs[i].Metadata["request_id"]; !ok {
				msgs[i].Metadata["request_id"] = reqID
			}
		}
	}

	if err := store.Append(persistCtx, sessionID, msgs...); err != nil {
		slog.Default().Error("failed to store messages",
			slog.String("session_id", sessionID),
			slog.String("request_id", reqID),
			slog.Int("count", len(msgs)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func buildPersistenceContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, timeout)
}
