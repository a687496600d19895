package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/speedtrap/internal/sim"
)

// DefaultMaxSimulatedDuration caps headless runs that would otherwise take
// hours of simulated time to reach a distant checkpoint.
const DefaultMaxSimulatedDuration = time.Hour

// SimulateOptions configure a synchronous run.
type SimulateOptions struct {
	FrameInterval time.Duration
	// When Brake is set the brakes engage on the first tick at or after
	// BrakeAtS seconds.
	Brake    bool
	BrakeAtS float64
	// MaxDuration caps simulated time; zero or less uses
	// DefaultMaxSimulatedDuration.
	MaxDuration time.Duration
	// OnTick, if set, receives every tick event in order.
	OnTick func(sim.TickEvent)
	// Now stamps the result; it defaults to time.Now.
	Now func() time.Time
}

// Simulate drives a run to completion on a synthetic fixed-step clock in the
// calling goroutine. Tick k is applied at elapsed time k*FrameInterval.
func Simulate(p sim.Params, opts SimulateOptions) (Result, error) {
	st, err := sim.NewState(p)
	if err != nil {
		return Result{}, err
	}

	frame := opts.FrameInterval
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	maxDur := opts.MaxDuration
	if maxDur <= 0 {
		maxDur = DefaultMaxSimulatedDuration
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	res := Result{RunID: uuid.NewString(), StartedAt: now(), Params: p}
	dt := frame.Seconds()
	maxTicks := int(maxDur/frame) + 1

	for k := 0; ; k++ {
		if k > maxTicks {
			res.State = st
			res.Err = fmt.Errorf("after %v simulated: %w", maxDur, ErrRunTimeout)
			return res, res.Err
		}

		elapsed := float64(k) * dt
		if opts.Brake && elapsed >= opts.BrakeAtS && !st.Braking {
			if err := st.Brake(); err != nil {
				return res, err
			}
		}

		next, ev, step, err := sim.Advance(p, st, elapsed)
		st = next
		if err != nil {
			res.State = st
			res.Err = err
			return res, err
		}
		if opts.OnTick != nil {
			opts.OnTick(ev)
		}
		if step == sim.StepTerminated {
			break
		}
	}

	v := sim.ComputeVerdict(p, st)
	res.State = st
	res.Verdict = &v
	return res, nil
}
