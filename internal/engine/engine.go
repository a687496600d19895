// Package engine schedules simulation runs against a frame clock. It owns the
// run state between ticks, serialises start/brake/reset commands and fans
// tick and verdict events out to subscribers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/speedtrap/internal/monitoring"
	"github.com/banshee-data/speedtrap/internal/sim"
	"github.com/banshee-data/speedtrap/internal/timeutil"
)

// DefaultFrameInterval approximates a 60 Hz animation frame.
const DefaultFrameInterval = time.Second / 60

var (
	// ErrNoActiveRun is returned by Brake when no run is in progress.
	ErrNoActiveRun = errors.New("no active run")
	// ErrRunTimeout aborts a run that exceeds the configured maximum duration.
	ErrRunTimeout = errors.New("run exceeded maximum duration")
)

// Options configure an Engine. The zero value runs on the real clock at
// DefaultFrameInterval with no duration limit.
type Options struct {
	Clock          timeutil.Clock
	FrameInterval  time.Duration
	MaxRunDuration time.Duration
	// OnFinish is called from the run goroutine after the verdict or aborted
	// event has been published. It is not called for runs ended by Reset.
	OnFinish func(Result)
}

// Result is the final record of a run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Params    sim.Params
	State     sim.State
	// Verdict is nil when the run was aborted.
	Verdict *sim.Verdict
	Err     error
}

// RunHandle identifies a started run.
type RunHandle struct {
	ID        string
	StartedAt time.Time
	// Done is closed once the run goroutine has exited.
	Done <-chan struct{}
}

type run struct {
	id        string
	params    sim.Params
	startedAt time.Time
	cancel    context.CancelFunc
	brake     chan struct{}
	done      chan struct{}
	reset     atomic.Bool
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Engine runs at most one simulation at a time.
type Engine struct {
	clock    timeutil.Clock
	frame    time.Duration
	maxDur   time.Duration
	onFinish func(Result)
	hub      *hub

	mu  sync.Mutex
	cur *run
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		clock:    opts.Clock,
		frame:    opts.FrameInterval,
		maxDur:   opts.MaxRunDuration,
		onFinish: opts.OnFinish,
		hub:      newHub(),
	}
	if e.clock == nil {
		e.clock = timeutil.RealClock{}
	}
	if e.frame <= 0 {
		e.frame = DefaultFrameInterval
	}
	return e
}

// FrameInterval returns the tick period.
func (e *Engine) FrameInterval() time.Duration {
	return e.frame
}

// Subscribe registers a new event subscriber.
func (e *Engine) Subscribe() (string, <-chan Event) {
	return e.hub.subscribe()
}

// Unsubscribe removes a subscriber and closes its channel.
func (e *Engine) Unsubscribe(id string) {
	e.hub.unsubscribe(id)
}

// Start validates p and begins a new run, resetting any run in progress. The
// first tick is applied immediately at elapsed time zero. ctx bounds the
// lifetime of the run, not of the call.
func (e *Engine) Start(ctx context.Context, p sim.Params) (RunHandle, error) {
	st, err := sim.NewState(p)
	if err != nil {
		return RunHandle{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:        uuid.NewString(),
		params:    p,
		startedAt: e.clock.Now(),
		cancel:    cancel,
		brake:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	e.cur = r

	monitoring.RunLogf(r.id)("start: %.1f km/h, %.1f m, zone=%s weather=%s",
		p.InitialSpeedKph, p.TotalDistanceM, p.Zone, p.Weather)

	go e.loop(runCtx, r, st)

	return RunHandle{ID: r.id, StartedAt: r.startedAt, Done: r.done}, nil
}

// Brake engages the brakes of the active run from its next tick on.
func (e *Engine) Brake() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || e.cur.finished() {
		return ErrNoActiveRun
	}
	select {
	case e.cur.brake <- struct{}{}:
	default:
	}
	return nil
}

// Reset stops the active run, if any, and waits for its goroutine to exit.
// No events for that run are published after Reset returns.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// Active returns the handle of the run in progress.
func (e *Engine) Active() (RunHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || e.cur.finished() {
		return RunHandle{}, false
	}
	return RunHandle{ID: e.cur.id, StartedAt: e.cur.startedAt, Done: e.cur.done}, true
}

// Close resets the engine and closes every subscriber channel.
func (e *Engine) Close() {
	e.Reset()
	e.hub.close()
}

func (e *Engine) stopLocked() {
	if e.cur == nil {
		return
	}
	r := e.cur
	r.reset.Store(true)
	r.cancel()
	<-r.done
	e.cur = nil
}

func (e *Engine) loop(ctx context.Context, r *run, st sim.State) {
	defer close(r.done)
	defer r.cancel()

	logf := monitoring.RunLogf(r.id)

	ticker := e.clock.NewTicker(e.frame)
	defer ticker.Stop()

	if !e.tick(ctx, r, &st, 0) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			if !r.reset.Load() {
				e.finish(r, st, nil, fmt.Errorf("run cancelled: %w", ctx.Err()))
			}
			return

		case <-r.brake:
			if err := st.Brake(); err != nil {
				logf("brake ignored: %v", err)
				continue
			}
			logf("brake engaged at %.2fs, %.1f km/h", st.ElapsedS, st.SpeedKph)

		case now := <-ticker.C():
			elapsed := now.Sub(r.startedAt)
			if e.maxDur > 0 && elapsed > e.maxDur {
				e.finish(r, st, nil, fmt.Errorf("after %v: %w", e.maxDur, ErrRunTimeout))
				return
			}
			if !e.tick(ctx, r, &st, elapsed.Seconds()) {
				return
			}
		}
	}
}

// tick applies one frame and reports whether the loop should continue.
func (e *Engine) tick(ctx context.Context, r *run, st *sim.State, elapsedS float64) bool {
	if ctx.Err() != nil || r.reset.Load() {
		if !r.reset.Load() {
			e.finish(r, *st, nil, fmt.Errorf("run cancelled: %w", ctx.Err()))
		}
		return false
	}

	next, ev, step, err := sim.Advance(r.params, *st, elapsedS)
	if err != nil {
		if errors.Is(err, sim.ErrNonMonotonicTime) {
			monitoring.RunLogf(r.id)("skipping tick: %v", err)
			return true
		}
		*st = next
		e.finish(r, *st, nil, err)
		return false
	}
	*st = next

	e.hub.publish(Event{Kind: EventTick, RunID: r.id, Tick: &ev})

	if step == sim.StepTerminated {
		v := sim.ComputeVerdict(r.params, *st)
		e.finish(r, *st, &v, nil)
		return false
	}
	return true
}

func (e *Engine) finish(r *run, st sim.State, v *sim.Verdict, err error) {
	if r.reset.Load() {
		return
	}

	logf := monitoring.RunLogf(r.id)
	ev := Event{RunID: r.id}
	if err != nil {
		logf("aborted after %d ticks: %v", len(st.History), err)
		ev.Kind = EventAborted
		ev.Error = err.Error()
	} else {
		logf("verdict: %.1f km/h at checkpoint, limit %.0f, exceeded=%t",
			v.FinalSpeedKph, v.SpeedLimitKph, v.ExceededLimit)
		ev.Kind = EventVerdict
		ev.Verdict = v
	}
	e.hub.publish(ev)

	if e.onFinish != nil {
		e.onFinish(Result{
			RunID:     r.id,
			StartedAt: r.startedAt,
			Params:    r.params,
			State:     st,
			Verdict:   v,
			Err:       err,
		})
	}
}
