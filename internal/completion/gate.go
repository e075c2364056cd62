package completion

import (
	"sync"
	"time"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/logging"
	"github.com/dshills/ghostpad/internal/schedule"
)

// RateWindow is the request count of the current window.
type RateWindow struct {
	Count       int
	WindowStart time.Time
	LastRequest time.Time
}

// RetrySuggestion is a retry result parked until the user returns to its
// position in the same, unedited document.
type RetrySuggestion struct {
	Text      string
	Document  editor.Document
	Version   uint64
	Position  editor.Position
	Timestamp time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock sets the clock driving the window reset timer.
func WithGateClock(c schedule.Clock) GateOption {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithRateLimit sets the maximum requests per window.
func WithRateLimit(limit int, window time.Duration) GateOption {
	return func(g *Gate) {
		if limit > 0 {
			g.limit = limit
		}
		if window > 0 {
			g.window = window
		}
	}
}

// WithRetryTTL sets how long a retry suggestion stays servable.
func WithRetryTTL(ttl time.Duration) GateOption {
	return func(g *Gate) {
		if ttl > 0 {
			g.retryTTL = ttl
		}
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(l *logging.Logger) GateOption {
	return func(g *Gate) {
		g.log = l.WithComponent("gate")
	}
}

// Gate enforces the request rate limit and holds the single retry slot.
//
// A window counts requests until it has been idle for the window length,
// at which point a timer zeroes it. Requests over the limit are denied
// without queueing.
type Gate struct {
	mu       sync.Mutex
	clock    schedule.Clock
	limit    int
	window   time.Duration
	retryTTL time.Duration
	log      *logging.Logger

	rate      RateWindow
	resetTask *schedule.Task
	retry     *RetrySuggestion
	closed    bool
}

// NewGate creates a gate with the default limits.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		clock:    schedule.Real(),
		limit:    config.DefaultRateLimit,
		window:   config.DefaultRateWindow,
		retryTTL: config.DefaultRetryTTL,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.resetTask = schedule.NewTask(g.clock)
	return g
}

// TryAcquire reserves one request at now. It returns false when the
// window is full.
func (g *Gate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if !g.rate.LastRequest.IsZero() && now.Sub(g.rate.LastRequest) > g.window {
		g.rate = RateWindow{}
	}
	if g.rate.Count >= g.limit {
		g.log.Debug("rate limit reached (%d in window)", g.rate.Count)
		return false
	}
	if g.rate.Count == 0 {
		g.rate.WindowStart = now
	}
	g.rate.Count++
	g.rate.LastRequest = now

	g.resetTask.Schedule(g.window, g.resetWindow)
	return true
}

func (g *Gate) resetWindow() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rate = RateWindow{}
}

// Window returns the current window.
func (g *Gate) Window() RateWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate
}

// StoreRetry parks text for pos in version of doc, replacing any earlier
// retry.
func (g *Gate) StoreRetry(text string, doc editor.Document, version uint64, pos editor.Position, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.retry = &RetrySuggestion{
		Text:      text,
		Document:  doc,
		Version:   version,
		Position:  pos,
		Timestamp: now,
	}
}

// TakeRetry returns the parked retry if it was stored for pos in version of
// doc and has not expired. A served retry is cleared; an expired one is
// dropped.
func (g *Gate) TakeRetry(doc editor.Document, version uint64, pos editor.Position, now time.Time) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.retry
	if r == nil {
		return "", false
	}
	if now.Sub(r.Timestamp) >= g.retryTTL {
		g.retry = nil
		return "", false
	}
	if r.Document != doc || r.Version != version || r.Position != pos {
		return "", false
	}
	g.retry = nil
	return r.Text, true
}

// PendingRetry returns a copy of the parked retry, if any.
func (g *Gate) PendingRetry() (RetrySuggestion, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retry == nil {
		return RetrySuggestion{}, false
	}
	return *g.retry, true
}

// Close cancels the reset timer and drops the retry slot.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.retry = nil
	g.mu.Unlock()

	g.resetTask.Cancel()
}
