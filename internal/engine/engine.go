// Package engine runs tab grouping and reordering operations against a
// browser store as an explicit state machine:
//
//	Idle → Classifying → Moving → Settling → Grouping → Done
//
// Any store error moves the run to Failed and aborts the remaining steps.
// Nothing is rolled back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/classify"
	"github.com/lotas/tabregel/internal/reorder"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNoRules is returned when rule grouping is requested with an empty
	// rule list. It is a precondition, not a failure.
	ErrNoRules = errors.New("no rules configured")
	// ErrBusy is returned when another operation is running on the window.
	ErrBusy = errors.New("another operation is running on this window")
)

// State is a step of an engine run.
type State int

const (
	Idle State = iota
	Classifying
	Moving
	Settling
	Grouping
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Classifying:
		return "classifying"
	case Moving:
		return "moving"
	case Settling:
		return "settling"
	case Grouping:
		return "grouping"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// OpError reports the operation and step in which a store call failed.
type OpError struct {
	Op    string
	Phase State
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Op, e.Phase, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Clock abstracts waiting so tests can settle instantly.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Policy tunes engine behavior.
type Policy struct {
	// SettleDelay is the first wait after bulk moves. Each further
	// settle round doubles it.
	SettleDelay time.Duration
	// MaxSettleRounds bounds how often the order is re-read before the
	// engine gives up waiting and continues.
	MaxSettleRounds int
	// CollapseNewGroups sets the collapsed state of newly created groups.
	CollapseNewGroups bool
	// DomainMinTabs is the smallest domain bucket that gets a group.
	DomainMinTabs int
}

// DefaultPolicy returns the settings used when none are configured.
func DefaultPolicy() Policy {
	return Policy{
		SettleDelay:       150 * time.Millisecond,
		MaxSettleRounds:   3,
		CollapseNewGroups: true,
		DomainMinTabs:     2,
	}
}

// Report summarizes a finished run.
type Report struct {
	Op     string
	Window int
	// States lists every state the run passed through.
	States []State
	Moved  int
	// Groups lists the IDs of groups created or re-asserted.
	Groups []int
	// Regrouped maps old group IDs to the IDs they were recreated under.
	Regrouped map[int]int
	// SettleRounds counts settle waits; Unsettled is set when the order
	// never matched the plan within the allowed rounds.
	SettleRounds int
	Unsettled    bool
	Partition    *classify.Partition
}

// State returns the last state reached.
func (r *Report) State() State {
	if len(r.States) == 0 {
		return Idle
	}
	return r.States[len(r.States)-1]
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(r *Runner) { r.clock = c } }

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option { return func(r *Runner) { r.policy = p } }

// WithMetrics records operation metrics.
func WithMetrics(m *Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithStateHook is called on every state transition.
func WithStateHook(fn func(op string, window int, s State)) Option {
	return func(r *Runner) { r.onState = fn }
}

// Runner executes operations one window at a time.
type Runner struct {
	store   browser.Store
	clock   Clock
	policy  Policy
	metrics *Metrics
	onState func(op string, window int, s State)

	mu   sync.Mutex
	busy map[int]bool
}

// New returns a Runner over store.
func New(store browser.Store, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		clock:  realClock{},
		policy: DefaultPolicy(),
		busy:   make(map[int]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the runner's policy.
func (r *Runner) Policy() Policy { return r.policy }

func (r *Runner) acquire(window int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[window] {
		return false
	}
	r.busy[window] = true
	return true
}

func (r *Runner) release(window int) {
	r.mu.Lock()
	delete(r.busy, window)
	r.mu.Unlock()
}

// run is one state machine execution.
type run struct {
	r      *Runner
	report *Report
	state  State
}

func (x *run) enter(s State) {
	x.state = s
	x.report.States = append(x.report.States, s)
	applog.Debug("engine.state", "op", x.report.Op, "window", x.report.Window, "state", s.String())
	if x.r.onState != nil {
		x.r.onState(x.report.Op, x.report.Window, s)
	}
}

// fail wraps err with the current state and enters Failed.
func (x *run) fail(err error) error {
	phase := x.state
	x.enter(Failed)
	return &OpError{Op: x.report.Op, Phase: phase, Err: err}
}

// execute guards a window, runs body and records the outcome.
func (r *Runner) execute(ctx context.Context, op string, window int, body func(ctx context.Context, x *run) error) (*Report, error) {
	report := &Report{Op: op, Window: window}
	if !r.acquire(window) {
		r.observe(op, "busy", 0)
		return report, ErrBusy
	}
	defer r.release(window)

	start := time.Now()
	x := &run{r: r, report: report}
	x.enter(Idle)
	err := body(ctx, x)

	switch {
	case errors.Is(err, ErrNoRules):
		r.observe(op, "no_rules", 0)
	case err != nil:
		applog.Error("engine.failed", err, "op", op, "window", window)
		r.observe(op, "failed", time.Since(start))
	default:
		x.enter(Done)
		applog.Info("engine.done", "op", op, "window", window, "moved", report.Moved, "groups", len(report.Groups), "settle_rounds", report.SettleRounds)
		r.observe(op, "ok", time.Since(start))
		if r.metrics != nil {
			r.metrics.SettleRounds.Observe(float64(report.SettleRounds))
		}
	}
	return report, err
}

func (r *Runner) observe(op, result string, d time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.OperationsTotal.With(prometheus.Labels{"op": op, "result": result}).Inc()
	if d > 0 {
		r.metrics.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// wait blocks for d on the runner's clock.
func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(d):
		return nil
	}
}

// move issues every move of plan in order.
func (x *run) move(ctx context.Context, plan *reorder.Plan) error {
	x.enter(Moving)
	for _, m := range plan.Moves() {
		if err := x.r.store.MoveTab(ctx, m.TabID, m.Index); err != nil {
			return x.fail(err)
		}
		x.report.Moved++
		if x.r.metrics != nil {
			x.r.metrics.MovesTotal.Inc()
		}
	}
	return nil
}

// settle waits for the store to reflect plan, doubling the wait on every
// round that still reads a different order. Moves are never re-issued.
func (x *run) settle(ctx context.Context, plan *reorder.Plan) error {
	x.enter(Settling)
	delay := x.r.policy.SettleDelay
	rounds := x.r.policy.MaxSettleRounds
	if rounds < 1 {
		rounds = 1
	}
	for i := 0; i < rounds; i++ {
		if err := x.r.wait(ctx, delay); err != nil {
			return x.fail(err)
		}
		x.report.SettleRounds++
		if plan == nil {
			return nil
		}
		tabs, err := x.r.store.ListTabs(ctx, x.report.Window)
		if err != nil {
			return x.fail(err)
		}
		if plan.Satisfied(tabs) {
			return nil
		}
		applog.Debug("engine.settle.retry", "op", x.report.Op, "round", i+1, "delay", delay.String())
		delay *= 2
	}
	x.report.Unsettled = true
	applog.Warn("engine.settle.exhausted", "op", x.report.Op, "window", x.report.Window, "rounds", rounds)
	return nil
}
