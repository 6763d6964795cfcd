package control_test

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestelampe/lampd/internal/color"
	"github.com/bestelampe/lampd/internal/control"
)

func defaultTarget() control.Target {
	return control.Target{Temperature: 3000, Brightness: 0.5, Speed: 0.01}
}

func TestTargetValidate(t *testing.T) {
	zeroY := color.NewXY(0.3, 0)
	nanXY := color.NewXY(math.NaN(), 0.3)
	white := color.NewXY(0.3127, 0.329)

	tests := []struct {
		name    string
		modify  func(*control.Target)
		wantErr error
	}{
		{name: "valid", modify: func(*control.Target) {}},
		{name: "valid color", modify: func(t *control.Target) { t.Color = &white }},
		{name: "zero temperature", modify: func(t *control.Target) { t.Temperature = 0 }, wantErr: control.ErrInvalidTemperature},
		{name: "infinite temperature", modify: func(t *control.Target) { t.Temperature = math.Inf(1) }, wantErr: control.ErrInvalidTemperature},
		{name: "negative brightness", modify: func(t *control.Target) { t.Brightness = -0.1 }, wantErr: control.ErrInvalidBrightness},
		{name: "brightness above one", modify: func(t *control.Target) { t.Brightness = 1.1 }, wantErr: control.ErrInvalidBrightness},
		{name: "NaN brightness", modify: func(t *control.Target) { t.Brightness = math.NaN() }, wantErr: control.ErrInvalidBrightness},
		{name: "zero speed", modify: func(t *control.Target) { t.Speed = 0 }, wantErr: control.ErrInvalidSpeed},
		{name: "speed above one", modify: func(t *control.Target) { t.Speed = 2 }, wantErr: control.ErrInvalidSpeed},
		{name: "color with zero y", modify: func(t *control.Target) { t.Color = &zeroY }, wantErr: control.ErrInvalidColor},
		{name: "NaN color", modify: func(t *control.Target) { t.Color = &nanXY }, wantErr: control.ErrInvalidColor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := defaultTarget()
			tt.modify(&target)
			err := target.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewState(t *testing.T) {
	state, err := control.NewState(defaultTarget())
	require.NoError(t, err)
	assert.Equal(t, defaultTarget(), state.Snapshot())

	_, err = control.NewState(control.Target{})
	assert.Error(t, err)
}

func TestState_SetRejectsInvalidTarget(t *testing.T) {
	state, err := control.NewState(defaultTarget())
	require.NoError(t, err)

	invalid := defaultTarget()
	invalid.Brightness = 2
	assert.ErrorIs(t, state.Set(invalid), control.ErrInvalidBrightness)
	assert.Equal(t, defaultTarget(), state.Snapshot(), "target must be unchanged")
}

func TestState_SnapshotIsCopy(t *testing.T) {
	xy := color.NewXY(0.3, 0.3)
	state, err := control.NewState(defaultTarget())
	require.NoError(t, err)

	_, err = state.SetColor(xy, 0.2)
	require.NoError(t, err)

	snapshot := state.Snapshot()
	require.NotNil(t, snapshot.Color)
	snapshot.Color.X = 0.9

	assert.Equal(t, 0.3, state.Snapshot().Color.X)
}

func TestState_SetTemperatureClearsColor(t *testing.T) {
	state, err := control.NewState(defaultTarget())
	require.NoError(t, err)

	_, err = state.SetColor(color.NewXY(0.3, 0.3), 0.2)
	require.NoError(t, err)

	target, err := state.SetTemperature(5000)
	require.NoError(t, err)
	assert.Nil(t, target.Color)
	assert.Equal(t, 5000.0, target.Temperature)
	assert.Equal(t, 0.2, target.Brightness)
}

func TestState_StepBrightness(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		delta int
		want  float64
	}{
		{name: "increase", start: 0.5, delta: 20, want: 0.7},
		{name: "decrease", start: 0.5, delta: -20, want: 0.3},
		{name: "clamp at one", start: 0.9, delta: 20, want: 1},
		{name: "clamp at zero", start: 0.1, delta: -20, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial := defaultTarget()
			initial.Brightness = tt.start
			state, err := control.NewState(initial)
			require.NoError(t, err)

			target, err := state.StepBrightness(tt.delta)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, target.Brightness, 1e-12)
			assert.Equal(t, control.ButtonSpeed, target.Speed)
		})
	}
}

func TestState_CyclePreset(t *testing.T) {
	state, err := control.NewState(defaultTarget())
	require.NoError(t, err)

	for _, want := range control.Presets {
		target, err := state.CyclePreset()
		require.NoError(t, err)
		assert.Equal(t, want, target.Temperature)
		assert.Equal(t, control.ButtonSpeed, target.Speed)
	}

	target, err := state.CyclePreset()
	require.NoError(t, err)
	assert.Equal(t, control.Presets[0], target.Temperature, "presets wrap around")
}

func TestState_Subscribe(t *testing.T) {
	state, err := control.NewState(defaultTarget())
	require.NoError(t, err)

	var got []control.Target
	state.Subscribe(func(target control.Target) {
		// Reading the state from a subscriber must not deadlock.
		_ = state.Snapshot()
		got = append(got, target)
	})

	_, err = state.SetBrightness(0.8)
	require.NoError(t, err)
	_, err = state.SetBrightness(1.5)
	require.Error(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, 0.8, got[0].Brightness)
}

func TestState_ConcurrentUpdates(t *testing.T) {
	initial := defaultTarget()
	initial.Brightness = 0
	state, err := control.NewState(initial)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = state.Update(func(t *control.Target) {
				t.Brightness += 0.05
			})
		}()
	}
	wg.Wait()

	assert.InDelta(t, 0.5, state.Snapshot().Brightness, 1e-9)
}
