package usecase

import (
	"context"
	"errors"
	"time"

	"session-memory/internal/domain"
)

// SessionStore is the single read capability the reader needs from storage.
type SessionStore interface {
	QuerySession(ctx context.Context, pk string) ([]domain.Item, error)
}

type SessionReader struct {
	store   SessionStore
	timeout time.Duration
}

type GetSessionInput struct {
	SessionID string
}

// NewSessionReader builds a reader over store. A positive timeout bounds each
// store read in addition to any deadline already on the caller's context.
func NewSessionReader(store SessionStore, timeout time.Duration) (*SessionReader, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if timeout < 0 {
		timeout = 0
	}
	return &SessionReader{store: store, timeout: timeout}, nil
}

// GetSession reads the non-deleted rows of a session partition and splits
// them into the session header, its metadata and its ordered messages.
func (r *SessionReader) GetSession(ctx context.Context, in GetSessionInput) (domain.SessionResult, error) {
	if in.SessionID == "" {
		return domain.SessionResult{}, invalidInput("session_id_required", MsgSessionIDRequired)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	items, err := r.store.QuerySession(ctx, domain.SessionPK(in.SessionID))
	if err != nil {
		if ctx.Err() != nil {
			return domain.SessionResult{}, newError(ErrorInternal, "context_canceled", err)
		}
		return domain.SessionResult{}, newError(ErrorInternal, "dynamodb_query_error", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.SessionResult{}, newError(ErrorInternal, "context_canceled", err)
	}
	if len(items) == 0 {
		return domain.SessionResult{}, newError(ErrorNotFound, "session_not_found", nil)
	}

	return shapeSession(items), nil
}

func shapeSession(items []domain.Item) domain.SessionResult {
	var header, metadata *domain.Item
	messages := make([]any, 0, len(items))
	for i := range items {
		item := &items[i]
		if msg, ok := item.Message(); ok {
			messages = append(messages, msg)
		}
		switch item.Kind {
		case domain.RowKindSession:
			if header == nil && item.Tagged {
				header = item
			}
		case domain.RowKindMetadata:
			if metadata == nil {
				metadata = item
			}
		}
	}
	// Without an explicit session tag the first row is the header.
	if header == nil {
		header = &items[0]
	}

	result := domain.SessionResult{
		Session:  publicAttributes(header),
		Metadata: map[string]any{},
		Messages: messages,
	}
	if metadata != nil {
		result.Metadata = publicAttributes(metadata)
	}
	return result
}

func publicAttributes(item *domain.Item) map[string]any {
	out := make(map[string]any, len(item.Attributes))
	for k, v := range item.Attributes {
		if domain.IsInternalAttribute(k) {
			continue
		}
		out[k] = v
	}
	return out
}
