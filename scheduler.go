package mentor

import (
	"fmt"
	"math"
	"time"
)

// minEase is the absolute lower bound on an ease factor. The configured floor
// may be higher; it may never be lower.
const minEase = 1.0

// EaseDeltas are the ease factor adjustments applied per recall grade.
// A whole-zero struct selects the SM-2 defaults.
type EaseDeltas struct {
	Fail float64 `yaml:"fail" json:"fail"`
	Hard float64 `yaml:"hard" json:"hard"`
	Good float64 `yaml:"good" json:"good"`
	Easy float64 `yaml:"easy" json:"easy"`
}

// DefaultEaseDeltas returns the SM-2 ease adjustments.
func DefaultEaseDeltas() EaseDeltas {
	return EaseDeltas{Fail: -0.20, Hard: -0.14, Good: 0, Easy: 0.10}
}

// SchedulerConfig configures a Scheduler.
// Zero values produce SM-2 defaults; see field comments.
type SchedulerConfig struct {
	InitialEase    float64    `yaml:"initial_ease" json:"initial_ease"`             // zero → 2.5
	EaseFloor      float64    `yaml:"ease_floor" json:"ease_floor"`                 // zero → 1.3
	FirstInterval  int        `yaml:"first_interval_days" json:"first_interval"`    // zero → 1
	SecondInterval int        `yaml:"second_interval_days" json:"second_interval"`  // zero → 6
	FailInterval   int        `yaml:"fail_interval_days" json:"fail_interval"`      // zero → 1
	MaxInterval    int        `yaml:"max_interval_days" json:"max_interval"`        // zero → 36500
	Deltas         EaseDeltas `yaml:"ease_deltas" json:"ease_deltas"`               // zero struct → DefaultEaseDeltas
}

// withDefaults returns the config with zero-value fields filled in.
func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.InitialEase == 0 {
		c.InitialEase = 2.5
	}
	if c.EaseFloor == 0 {
		c.EaseFloor = 1.3
	}
	if c.FirstInterval == 0 {
		c.FirstInterval = 1
	}
	if c.SecondInterval == 0 {
		c.SecondInterval = 6
	}
	if c.FailInterval == 0 {
		c.FailInterval = 1
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 36500
	}
	if c.Deltas == (EaseDeltas{}) {
		c.Deltas = DefaultEaseDeltas()
	}
	return c
}

// Scheduler computes review schedules using the SM-2 spaced repetition
// algorithm. It is pure: scheduling is a deterministic function of the input
// state, the recall grade, and the review time.
type Scheduler struct {
	cfg SchedulerConfig
}

// NewScheduler creates a Scheduler from the given config.
// Zero-value fields are filled with defaults; invalid values return an error.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	if cfg.EaseFloor < minEase {
		return nil, fmt.Errorf("mentor: scheduler: ease floor %.2f below minimum %.2f", cfg.EaseFloor, minEase)
	}
	if cfg.InitialEase < cfg.EaseFloor {
		return nil, fmt.Errorf("mentor: scheduler: initial ease %.2f below floor %.2f", cfg.InitialEase, cfg.EaseFloor)
	}
	if cfg.FirstInterval < 1 {
		return nil, fmt.Errorf("mentor: scheduler: first interval %d must be at least one day", cfg.FirstInterval)
	}
	if cfg.SecondInterval < cfg.FirstInterval {
		return nil, fmt.Errorf("mentor: scheduler: second interval %d shorter than first %d", cfg.SecondInterval, cfg.FirstInterval)
	}
	if cfg.FailInterval < 1 {
		return nil, fmt.Errorf("mentor: scheduler: fail interval %d must be at least one day", cfg.FailInterval)
	}
	if cfg.MaxInterval < cfg.SecondInterval {
		return nil, fmt.Errorf("mentor: scheduler: max interval %d shorter than second interval %d", cfg.MaxInterval, cfg.SecondInterval)
	}

	return &Scheduler{cfg: cfg}, nil
}

// InitialState returns the state of a freshly introduced item: no repetitions,
// no interval, initial ease, due immediately.
func (s *Scheduler) InitialState(now time.Time) ReviewState {
	return ReviewState{
		Ease: s.cfg.InitialEase,
		Due:  now,
	}
}

// Review processes a recall grade for the item at the given time.
// It returns the updated state; the input state is not mutated.
//
// Failure resets the repetition count and interval; success grows the
// interval: the first two successes use the fixed first/second intervals,
// later ones multiply the previous interval by the updated ease factor.
// The ease factor is adjusted before the interval is computed and is clamped
// to the configured floor after every update.
func (s *Scheduler) Review(state ReviewState, recall Recall, now time.Time) (ReviewState, error) {
	if !recall.IsValid() {
		return ReviewState{}, fmt.Errorf("%w: %d", ErrInvalidRecall, int(recall))
	}
	if err := state.Validate(); err != nil {
		return ReviewState{}, err
	}

	next := state
	next.Ease = s.clampEase(state.Ease + s.delta(recall))

	if recall == RecallFail {
		next.Repetitions = 0
		next.IntervalDays = s.cfg.FailInterval
	} else {
		next.Repetitions = state.Repetitions + 1
		switch next.Repetitions {
		case 1:
			next.IntervalDays = s.cfg.FirstInterval
		case 2:
			next.IntervalDays = s.cfg.SecondInterval
		default:
			next.IntervalDays = s.clampInterval(int(math.Round(float64(state.IntervalDays) * next.Ease)))
		}
	}

	next.Due = now.Add(time.Duration(next.IntervalDays) * 24 * time.Hour)
	return next, nil
}

// Preview returns the result of reviewing the state with each possible grade.
func (s *Scheduler) Preview(state ReviewState, now time.Time) (map[Recall]ReviewState, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	result := make(map[Recall]ReviewState, 4)
	for _, r := range []Recall{RecallFail, RecallHard, RecallGood, RecallEasy} {
		next, err := s.Review(state, r, now)
		if err != nil {
			return nil, err
		}
		result[r] = next
	}
	return result, nil
}

func (s *Scheduler) delta(recall Recall) float64 {
	switch recall {
	case RecallFail:
		return s.cfg.Deltas.Fail
	case RecallHard:
		return s.cfg.Deltas.Hard
	case RecallEasy:
		return s.cfg.Deltas.Easy
	default:
		return s.cfg.Deltas.Good
	}
}

func (s *Scheduler) clampEase(ease float64) float64 {
	if ease < s.cfg.EaseFloor {
		return s.cfg.EaseFloor
	}
	return ease
}

func (s *Scheduler) clampInterval(days int) int {
	if days < 1 {
		return 1
	}
	if days > s.cfg.MaxInterval {
		return s.cfg.MaxInterval
	}
	return days
}
