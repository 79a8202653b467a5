package correlation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default timing.
const (
	// DefaultScanWindow is how long a scan may stay unanswered.
	DefaultScanWindow = 30 * time.Second

	// defaultSweepInterval is how often Run evicts expired requests.
	defaultSweepInterval = time.Second
)

// Kind identifies the command a pending request waits on.
type Kind string

// Pending request kinds.
const (
	KindScan       Kind = "scan"
	KindConnect    Kind = "connect"
	KindDisconnect Kind = "disconnect"
	KindRemove     Kind = "remove"
	KindInject     Kind = "inject"
)

// PendingRequest is an outstanding command awaiting its asynchronous result.
type PendingRequest struct {
	Token     string    `json:"token"`
	SiteID    string    `json:"site_id"`
	Kind      Kind      `json:"kind"`
	SessionID *string   `json:"session_id,omitempty"`
	Addr      string    `json:"addr,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Logger defines the logging interface used by the Tracker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type queueKey struct {
	siteID string
	kind   Kind
}

// Tracker correlates asynchronous results with the requests that caused
// them. Every entry is consumed at most once: by token, by site and kind
// (oldest first), by supersession, or by expiry.
//
// All public methods are thread-safe.
type Tracker struct {
	mu      sync.Mutex
	byToken map[string]*PendingRequest
	queues  map[queueKey][]string // tokens in registration order

	scanWindow time.Duration
	now        func() time.Time
	newToken   func() string
	logger     Logger
	onExpire   func(PendingRequest)
}

// NewTracker creates a tracker. A non-positive scanWindow selects
// DefaultScanWindow.
func NewTracker(scanWindow time.Duration) *Tracker {
	if scanWindow <= 0 {
		scanWindow = DefaultScanWindow
	}
	return &Tracker{
		byToken:    make(map[string]*PendingRequest),
		queues:     make(map[queueKey][]string),
		scanWindow: scanWindow,
		now:        time.Now,
		newToken:   uuid.NewString,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// SetClock replaces the time source. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// SetOnExpire registers a callback for requests evicted by Sweep.
func (t *Tracker) SetOnExpire(fn func(PendingRequest)) {
	t.onExpire = fn
}

// ScanWindow returns the expiry window of scans and injections.
func (t *Tracker) ScanWindow() time.Duration {
	return t.scanWindow
}

// Register stores a new pending request and returns its token.
func (t *Tracker) Register(siteID string, kind Kind, sessionID *string) string {
	return t.RegisterDevice(siteID, kind, "", sessionID)
}

// RegisterDevice stores a pending device command for addr and returns its
// token. Its result is matched with ResolveDevice.
func (t *Tracker) RegisterDevice(siteID string, kind Kind, addr string, sessionID *string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	token := t.newToken()
	for _, taken := t.byToken[token]; taken; _, taken = t.byToken[token] {
		token = t.newToken()
	}

	req := &PendingRequest{
		Token:     token,
		SiteID:    siteID,
		Kind:      kind,
		Addr:      addr,
		CreatedAt: t.now(),
	}
	if sessionID != nil {
		sid := *sessionID
		req.SessionID = &sid
	}

	t.byToken[token] = req
	key := queueKey{siteID: siteID, kind: kind}
	t.queues[key] = append(t.queues[key], token)

	t.logger.Debug("pending request registered", "token", token, "site_id", siteID, "kind", kind, "addr", addr)
	return token
}

// Resolve removes and returns the request registered under token.
func (t *Tracker) Resolve(token string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.removeLocked(token)
	if !ok {
		return PendingRequest{}, false
	}
	return req, true
}

// ResolveBySite removes and returns the oldest request for siteID and kind.
// It is used when the answer on the wire carries no token.
func (t *Tracker) ResolveBySite(siteID string, kind Kind) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.queues[queueKey{siteID: siteID, kind: kind}]
	if len(queue) == 0 {
		return PendingRequest{}, false
	}
	return t.removeLocked(queue[0])
}

// ResolveDevice removes and returns the oldest request for siteID and kind
// that was registered for addr. Requests for other addresses stay pending.
func (t *Tracker) ResolveDevice(siteID string, kind Kind, addr string) (PendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, token := range t.queues[queueKey{siteID: siteID, kind: kind}] {
		if strings.EqualFold(t.byToken[token].Addr, addr) {
			return t.removeLocked(token)
		}
	}
	return PendingRequest{}, false
}

// Outstanding returns the number of requests waiting for siteID and kind
// without consuming any of them.
func (t *Tracker) Outstanding(siteID string, kind Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues[queueKey{siteID: siteID, kind: kind}])
}

// Supersede drops every outstanding request for siteID and kind and returns
// them. Callers use it to keep one in-flight request per site and kind.
func (t *Tracker) Supersede(siteID string, kind Kind) []PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := append([]string(nil), t.queues[queueKey{siteID: siteID, kind: kind}]...)
	dropped := make([]PendingRequest, 0, len(queue))
	for _, token := range queue {
		if req, ok := t.removeLocked(token); ok {
			dropped = append(dropped, req)
		}
	}
	if len(dropped) > 0 {
		t.logger.Debug("pending requests superseded", "site_id", siteID, "kind", kind, "count", len(dropped))
	}
	return dropped
}

// Sweep evicts scan and injection requests older than the scan window at
// now and returns them. Device commands never expire. Expiry is silent
// apart from the OnExpire callback.
func (t *Tracker) Sweep(now time.Time) []PendingRequest {
	t.mu.Lock()
	var expired []PendingRequest
	for token, req := range t.byToken {
		if !expires(req.Kind) || now.Sub(req.CreatedAt) < t.scanWindow {
			continue
		}
		if r, ok := t.removeLocked(token); ok {
			expired = append(expired, r)
		}
	}
	t.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	for _, req := range expired {
		t.logger.Debug("pending request expired", "token", req.Token, "site_id", req.SiteID, "kind", req.Kind)
		if t.onExpire != nil {
			t.onExpire(req)
		}
	}
	return expired
}

// Run sweeps expired requests until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(t.now())
		}
	}
}

// Pending returns a copy of all outstanding requests, oldest first.
func (t *Tracker) Pending() []PendingRequest {
	t.mu.Lock()
	out := make([]PendingRequest, 0, len(t.byToken))
	for _, req := range t.byToken {
		out = append(out, copyRequest(*req))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of outstanding requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byToken)
}

// removeLocked deletes token from the index and its queue. Caller holds t.mu.
func (t *Tracker) removeLocked(token string) (PendingRequest, bool) {
	req, ok := t.byToken[token]
	if !ok {
		return PendingRequest{}, false
	}
	delete(t.byToken, token)

	key := queueKey{siteID: req.SiteID, kind: req.Kind}
	queue := t.queues[key]
	for i, tok := range queue {
		if tok == token {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(t.queues, key)
	} else {
		t.queues[key] = queue
	}
	return copyRequest(*req), true
}

func expires(kind Kind) bool {
	return kind == KindScan || kind == KindInject
}

func copyRequest(req PendingRequest) PendingRequest {
	if req.SessionID != nil {
		sid := *req.SessionID
		req.SessionID = &sid
	}
	return req
}
