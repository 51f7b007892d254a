package chaos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms/pkg/exception"
)

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc  string
		cfg   Config
		valid bool
	}{
		{"zero", Config{}, true},
		{"rates", Config{FailRate: 0.5, StatusErrorRate: 1}, true},
		{"fail rate above one", Config{FailRate: 1.5}, false},
		{"negative status rate", Config{StatusErrorRate: -0.1}, false},
		{"negative delay", Config{MaxDelay: -time.Second}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, exception.ErrInvalidConfig)
			}
		})
	}
}

func TestEngineDeterministicWithSeed(t *testing.T) {
	cfg := Config{Seed: 42, FailRate: 0.3, StatusErrorRate: 0.3, MaxDelay: time.Millisecond}
	a, err := NewEngine(cfg)
	require.NoError(t, err)
	b, err := NewEngine(cfg)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		fa, da := a.Draw()
		fb, db := b.Draw()
		assert.Equal(t, fa, fb)
		assert.Equal(t, da, db)
		assert.LessOrEqual(t, da, time.Millisecond)
	}
}

func TestEngineExtremes(t *testing.T) {
	always, err := NewEngine(Config{Seed: 1, FailRate: 1})
	require.NoError(t, err)
	never, err := NewEngine(Config{Seed: 1})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		f, d := always.Draw()
		assert.Equal(t, FaultFail, f)
		assert.Zero(t, d)

		f, _ = never.Draw()
		assert.Equal(t, FaultNone, f)
	}

	var nilEngine *Engine
	f, d := nilEngine.Draw()
	assert.Equal(t, FaultNone, f)
	assert.Zero(t, d)
}
