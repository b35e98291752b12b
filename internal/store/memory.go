package store

import (
	"context"
	"sync"
	"time"

	"github.com/DrJLabs/forgetful-auth/internal/domain/oauth"
)

// Memory is the in-memory implementation of both stores, suitable for a
// single-instance deployment. Lookups check expiry before returning a hit, and
// a background sweep evicts stale entries so the maps stay bounded.
type Memory struct {
	mu       sync.Mutex
	requests map[string]oauth.AuthorizationRequest
	codes    map[string]*oauth.AuthorizationCode

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

var (
	_ PendingRequestStore = (*Memory)(nil)
	_ CodeStore           = (*Memory)(nil)
)

// NewMemory creates the store and starts its expiry sweep.
func NewMemory(sweepInterval time.Duration) *Memory {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	m := &Memory{
		requests:      make(map[string]oauth.AuthorizationRequest),
		codes:         make(map[string]*oauth.AuthorizationCode),
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Stop terminates the sweep goroutine.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// SaveRequest stores a pending authorization request.
func (m *Memory) SaveRequest(ctx context.Context, req oauth.AuthorizationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.SessionID] = req
	return nil
}

// GetRequest returns the pending request, or nil when absent or expired.
func (m *Memory) GetRequest(ctx context.Context, sessionID string) (*oauth.AuthorizationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[sessionID]
	if !ok {
		return nil, nil
	}
	if req.Expired(time.Now()) {
		delete(m.requests, sessionID)
		return nil, nil
	}
	out := req
	return &out, nil
}

// DeleteRequest removes the pending request.
func (m *Memory) DeleteRequest(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, sessionID)
	return nil
}

// SaveCode stores an authorization code.
func (m *Memory) SaveCode(ctx context.Context, code oauth.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := code
	m.codes[code.Code] = &stored
	return nil
}

// GetCode returns the code without consuming it, or nil when it is absent,
// expired, or already consumed.
func (m *Memory) GetCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	if rec.Expired(time.Now()) {
		delete(m.codes, code)
		return nil, nil
	}
	if rec.Consumed {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// ConsumeCode flips Consumed under the lock so two concurrent redemption
// attempts can never both succeed.
func (m *Memory) ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	if rec.Expired(time.Now()) {
		delete(m.codes, code)
		return nil, nil
	}
	if rec.Consumed {
		return nil, nil
	}
	rec.Consumed = true
	out := *rec
	return &out, nil
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Memory) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, req := range m.requests {
		if req.Expired(now) {
			delete(m.requests, sid)
		}
	}
	for key, code := range m.codes {
		if code.Expired(now) || code.Consumed {
			delete(m.codes, key)
		}
	}
}
