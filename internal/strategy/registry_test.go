package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestRegistryContainsAllStrategies(t *testing.T) {
	reg, err := NewRegistry(&mockLogger{})
	require.NoError(t, err)

	for _, name := range []string{
		"momentum_breakout", "breakout_squeeze", "sniper_pro", "support_rebound", "whale_radar",
	} {
		s, err := reg.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}

	_, err = reg.Get("does_not_exist")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRegistryResolveSkipsUnknown(t *testing.T) {
	reg, err := NewRegistry(&mockLogger{})
	require.NoError(t, err)

	resolved := reg.Resolve(context.Background(), []domain.StrategySetting{
		{Name: "momentum_breakout", Params: map[string]float64{"rsi_max": 75}},
		{Name: "mystery_strategy"},
		{Name: "whale_radar"},
	})
	require.Len(t, resolved, 2)
	assert.Equal(t, "momentum_breakout", resolved[0].Strategy.Name())
	assert.Equal(t, 75.0, resolved[0].Params["rsi_max"])
	assert.Equal(t, "whale_radar", resolved[1].Strategy.Name())
}

func TestRegistryResolveRejectsInvalidParams(t *testing.T) {
	reg, err := NewRegistry(&mockLogger{})
	require.NoError(t, err)

	resolved := reg.Resolve(context.Background(), []domain.StrategySetting{
		{Name: "momentum_breakout", Params: map[string]float64{"rsi_max": 140}},
		{Name: "breakout_squeeze", Params: map[string]float64{"surprise_knob": 1}},
		{Name: "sniper_pro", Params: map[string]float64{"adx_min": 30}},
	})
	require.Len(t, resolved, 1)
	assert.Equal(t, "sniper_pro", resolved[0].Strategy.Name())
}
