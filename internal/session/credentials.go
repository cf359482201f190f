package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoPendingRequest is returned when a credential is supplied for a request
// that is not (or no longer) waiting.
var ErrNoPendingRequest = errors.New("no pending credential request")

// CredentialRequest asks the user for the wallet password.
type CredentialRequest struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// CredentialSource supplies the wallet password on demand. The caller owns
// the returned slice and clears it.
type CredentialSource interface {
	Credential(ctx context.Context, req CredentialRequest) ([]byte, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context, req CredentialRequest) ([]byte, error)

func (f CredentialFunc) Credential(ctx context.Context, req CredentialRequest) ([]byte, error) {
	return f(ctx, req)
}

// ChannelCredentials publishes requests on a channel and waits for the UI to
// answer through Supply.
type ChannelCredentials struct {
	mu       sync.Mutex
	requests chan CredentialRequest
	pending  map[string]pendingRequest
}

type pendingRequest struct {
	req   CredentialRequest
	reply chan []byte
}

// NewChannelCredentials creates a source whose request channel holds up to
// buffer unread requests. Requests that do not fit are still listed by
// Pending.
func NewChannelCredentials(buffer int) *ChannelCredentials {
	return &ChannelCredentials{
		requests: make(chan CredentialRequest, buffer),
		pending:  make(map[string]pendingRequest),
	}
}

// Requests returns the channel of new credential requests.
func (c *ChannelCredentials) Requests() <-chan CredentialRequest {
	return c.requests
}

// Pending lists the requests still waiting for an answer, oldest first.
func (c *ChannelCredentials) Pending() []CredentialRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CredentialRequest, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Credential blocks until the request is answered or ctx is done.
func (c *ChannelCredentials) Credential(ctx context.Context, req CredentialRequest) ([]byte, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	reply := make(chan []byte, 1)

	c.mu.Lock()
	c.pending[req.ID] = pendingRequest{req: req, reply: reply}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	select {
	case c.requests <- req:
	default:
	}

	select {
	case pw := <-reply:
		return pw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Supply answers the request with id. The password is copied.
func (c *ChannelCredentials) Supply(id string, password []byte) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return ErrNoPendingRequest
	}
	p.reply <- append([]byte(nil), password...)
	return nil
}
