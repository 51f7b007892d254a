package chaos

import (
	"math/rand"
	"sync"
	"time"

	"oms/internal/errors"
	"oms/pkg/exception"
)

// Config controls fault injection behavior.
type Config struct {
	Seed int64 `json:"seed" yaml:"seed"`
	// FailRate is the probability that a call fails outright.
	FailRate float64 `json:"failRate" yaml:"failRate"`
	// StatusErrorRate is the probability that a call succeeds at transport
	// level but the venue answers with status "error".
	StatusErrorRate float64       `json:"statusErrorRate" yaml:"statusErrorRate"`
	MaxDelay        time.Duration `json:"maxDelay" yaml:"maxDelay"`
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.FailRate > 0 || c.StatusErrorRate > 0 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.FailRate < 0 || c.FailRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "failRate must be between 0 and 1")
	}
	if c.StatusErrorRate < 0 || c.StatusErrorRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "statusErrorRate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "maxDelay must be >= 0")
	}
	return nil
}

// Fault is the outcome drawn for one call.
type Fault int

const (
	FaultNone Fault = iota
	FaultFail
	FaultStatusError
)

// Engine draws seeded faults and delays. Safe for concurrent use.
type Engine struct {
	cfg Config
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Config returns the engine configuration, including the resolved seed.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.cfg
}

// Draw returns the fault and delay to apply to the next call.
func (e *Engine) Draw() (Fault, time.Duration) {
	if e == nil {
		return FaultNone, 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	delay := e.delay()
	switch {
	case e.cfg.FailRate > 0 && e.rng.Float64() < e.cfg.FailRate:
		return FaultFail, delay
	case e.cfg.StatusErrorRate > 0 && e.rng.Float64() < e.cfg.StatusErrorRate:
		return FaultStatusError, delay
	default:
		return FaultNone, delay
	}
}

func (e *Engine) delay() time.Duration {
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(maxDelay + 1))
}
