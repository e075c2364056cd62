package completion

import (
	"context"
	"sync"

	"github.com/dshills/ghostpad/internal/backend"
	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/logging"
	"github.com/dshills/ghostpad/internal/schedule"
)

// Request asks for a suggestion at Position in Document.
type Request struct {
	Document editor.Document
	Position editor.Position
}

// Suggestion is an accepted completion.
type Suggestion struct {
	Text     string
	Label    string
	Position editor.Position
	// Version is the document version the suggestion was produced for.
	Version uint64
	// Retry is set when the suggestion came from the retry slot.
	Retry bool
}

// BackendFactory builds a backend for an AI configuration.
type BackendFactory func(cfg config.AIConfig) (backend.Backend, error)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBackend fixes the backend. Configure then keeps it instead of
// building a new one.
func WithBackend(b backend.Backend) PipelineOption {
	return func(p *Pipeline) {
		p.backend = b
		p.fixed = b != nil
	}
}

// WithBackendFactory sets how Configure builds backends.
func WithBackendFactory(f BackendFactory) PipelineOption {
	return func(p *Pipeline) {
		if f != nil {
			p.factory = f
		}
	}
}

// WithCascade replaces the filter cascade.
func WithCascade(c Cascade) PipelineOption {
	return func(p *Pipeline) {
		p.cascade = c
	}
}

// WithTuning sets the gate and context limits.
func WithTuning(t config.CompletionConfig) PipelineOption {
	return func(p *Pipeline) {
		p.tuning = t
	}
}

// WithClock sets the clock for the gate and the retry timer.
func WithClock(c schedule.Clock) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithHost sets the host re-triggered when a retry result is parked.
func WithHost(h editor.Host) PipelineOption {
	return func(p *Pipeline) {
		p.host = h
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// Pipeline turns a cursor position into a filtered suggestion.
//
// Every failure is an abstain: Complete returns the reason as an error and
// the caller shows nothing. A filter rejection additionally schedules one
// retry whose result is parked in the gate's retry slot and served,
// unfiltered, on the next query at the same position.
type Pipeline struct {
	mu      sync.Mutex
	ai      config.AIConfig
	backend backend.Backend
	fixed   bool
	closed  bool

	factory   BackendFactory
	cascade   Cascade
	tuning    config.CompletionConfig
	clock     schedule.Clock
	host      editor.Host
	gate      *Gate
	retryTask *schedule.Task
	metrics   *Metrics
	log       *logging.Logger

	// base is cancelled by Close and bounds retry calls.
	base   context.Context
	cancel context.CancelFunc
}

// DefaultTuning returns the built-in gate and context limits.
func DefaultTuning() config.CompletionConfig {
	return config.CompletionConfig{
		RateLimit:      config.DefaultRateLimit,
		RateWindow:     config.DefaultRateWindow,
		RetryTTL:       config.DefaultRetryTTL,
		RetryDelay:     config.DefaultRetryDelay,
		RetryMaxChars:  config.DefaultRetryMaxChars,
		RetryMaxTokens: config.DefaultRetryMaxTokens,
		MaxPrefix:      config.DefaultMaxPrefix,
		MaxSuffix:      config.DefaultMaxSuffix,
	}
}

// NewPipeline creates a pipeline for ai. Without WithBackend the backend
// is built by the factory (backend.New by default) once ai is complete.
func NewPipeline(ai config.AIConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		factory: func(cfg config.AIConfig) (backend.Backend, error) { return backend.New(cfg) },
		cascade: DefaultCascade(),
		tuning:  DefaultTuning(),
		clock:   schedule.Real(),
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("completion")
	p.base, p.cancel = context.WithCancel(context.Background())
	p.gate = NewGate(
		WithGateClock(p.clock),
		WithRateLimit(p.tuning.RateLimit, p.tuning.RateWindow),
		WithRetryTTL(p.tuning.RetryTTL),
		WithGateLogger(p.log),
	)
	p.retryTask = schedule.NewTask(p.clock)

	if err := p.Configure(ai); err != nil {
		p.log.Warn("backend unavailable: %v", err)
	}
	return p
}

// Configure swaps in a new AI configuration. The backend is rebuilt unless
// it was fixed with WithBackend. An incomplete configuration leaves the
// pipeline abstaining.
func (p *Pipeline) Configure(ai config.AIConfig) error {
	var (
		next backend.Backend
		err  error
	)
	p.mu.Lock()
	fixed := p.fixed
	p.mu.Unlock()

	if !fixed && ai.Complete() {
		next, err = p.factory(ai)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if next != nil {
			_ = backend.Close(next)
		}
		return ErrClosed
	}
	p.ai = ai
	var old backend.Backend
	if !fixed {
		old, p.backend = p.backend, next
	}
	p.mu.Unlock()

	if old != nil {
		if cerr := backend.Close(old); cerr != nil {
			p.log.Debug("closing backend: %v", cerr)
		}
	}
	if err != nil {
		return err
	}
	if missing := ai.Missing(); len(missing) > 0 {
		p.log.Debug("completion not configured, missing %v", missing)
	}
	return nil
}

// Configured reports whether Complete can reach a backend.
func (p *Pipeline) Configured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.backend != nil && p.ai.Complete()
}

// Gate returns the request gate.
func (p *Pipeline) Gate() *Gate {
	return p.gate
}

// Complete runs one request through the gate, the backend and the filter
// cascade.
func (p *Pipeline) Complete(ctx context.Context, req Request) (Suggestion, error) {
	p.metrics.recordRequest()
	s, err := p.complete(ctx, req)
	if err != nil {
		p.metrics.recordAbstain(err)
		p.log.Debug("abstain (%s): %v", Reason(err), err)
		return Suggestion{}, err
	}
	p.metrics.recordAccepted()
	return s, nil
}

func (p *Pipeline) complete(ctx context.Context, req Request) (Suggestion, error) {
	p.mu.Lock()
	closed := p.closed
	ai := p.ai
	b := p.backend
	p.mu.Unlock()

	switch {
	case closed:
		return Suggestion{}, ErrClosed
	case req.Document == nil:
		return Suggestion{}, ErrNoDocument
	case b == nil || !ai.Complete():
		return Suggestion{}, ErrNotConfigured
	}

	now := p.clock.Now()
	if text, ok := p.gate.TakeRetry(req.Document, req.Document.Version(), req.Position, now); ok {
		p.metrics.recordRetryServed()
		return Suggestion{
			Text:     text,
			Label:    Label(text),
			Position: req.Position,
			Version:  req.Document.Version(),
			Retry:    true,
		}, nil
	}
	if !p.gate.TryAcquire(now) {
		return Suggestion{}, ErrRateLimited
	}

	cctx := BuildContext(req.Document, req.Position, p.tuning.MaxPrefix, p.tuning.MaxSuffix)
	raw, err := p.call(ctx, b, PrimaryRequest(cctx, ai.Temperature, ai.MaxTokens))
	if err != nil {
		return Suggestion{}, err
	}

	text := Normalize(raw)
	if text == "" {
		return Suggestion{}, ErrEmptyResponse
	}

	if v := p.cascade.Evaluate(text, cctx); !v.Accepted {
		p.log.Debug("suggestion %q rejected by %s: %s", text, v.Filter, v.Reason)
		p.scheduleRetry(req.Document, cctx, v, text)
		return Suggestion{}, &RejectedError{Verdict: v}
	}

	return Suggestion{
		Text:     text,
		Label:    Label(text),
		Position: req.Position,
		Version:  cctx.Version,
	}, nil
}

func (p *Pipeline) call(ctx context.Context, b backend.Backend, req backend.Request) (string, error) {
	start := p.clock.Now()
	raw, err := b.Complete(ctx, req)
	p.metrics.recordLatency(p.clock.Now().Sub(start))
	if err != nil {
		if backend.Canceled(err) {
			p.log.Debug("%s request cancelled", b.Name())
		} else {
			p.log.Warn("%s request failed: %v", b.Name(), err)
		}
		return "", err
	}
	return raw, nil
}

// scheduleRetry arms the single retry for a rejection. Re-arming replaces
// a retry that has not run yet.
func (p *Pipeline) scheduleRetry(doc editor.Document, cctx Context, v Verdict, rejected string) {
	p.retryTask.Schedule(p.tuning.RetryDelay, func() {
		p.retry(doc, cctx, v, rejected)
	})
}

// retry asks once for a short alternative and parks it. Its result is not
// filtered and never schedules another retry.
func (p *Pipeline) retry(doc editor.Document, cctx Context, v Verdict, rejected string) {
	p.mu.Lock()
	closed := p.closed
	ai := p.ai
	b := p.backend
	host := p.host
	p.mu.Unlock()

	if closed || b == nil || !ai.Complete() {
		return
	}
	if doc.Version() != cctx.Version || doc.Cursor() != cctx.Position {
		p.log.Debug("retry skipped, document moved on")
		return
	}
	if !p.gate.TryAcquire(p.clock.Now()) {
		p.log.Debug("retry skipped, rate limited")
		return
	}
	p.metrics.recordRetry()

	ctx, cancel := p.base, context.CancelFunc(func() {})
	if ai.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(p.base, ai.RequestTimeout)
	}
	defer cancel()

	req := RetryRequest(cctx, v, rejected, ai.Temperature, p.tuning.RetryMaxChars, p.tuning.RetryMaxTokens)
	raw, err := p.call(ctx, b, req)
	if err != nil {
		return
	}
	text := Truncate(Normalize(raw), p.tuning.RetryMaxChars)
	if text == "" {
		return
	}

	p.gate.StoreRetry(text, doc, cctx.Version, cctx.Position, p.clock.Now())
	p.log.Debug("retry suggestion parked at %d:%d", cctx.Position.Line, cctx.Position.Column)
	if host != nil {
		host.TriggerSuggest()
	}
}

// Close cancels the retry timer and in-flight retries and releases the
// backend.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	b := p.backend
	p.backend = nil
	p.mu.Unlock()

	p.cancel()
	p.retryTask.Cancel()
	p.gate.Close()
	if b != nil {
		return backend.Close(b)
	}
	return nil
}
