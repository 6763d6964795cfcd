package schedule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestelampe/lampd/internal/control"
)

type fakeState struct {
	targets []control.Target
	err     error
}

func (f *fakeState) Set(t control.Target) error {
	if f.err != nil {
		return f.err
	}
	f.targets = append(f.targets, t)
	return nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		scenes  []Scene
		wantErr bool
	}{
		{name: "no scenes"},
		{
			name: "seconds field",
			scenes: []Scene{
				{Spec: "0 30 6 * * *", Temperature: 2700, Brightness: 0.3, Speed: 0.01},
				{Spec: "0 0 22 * * *", Temperature: 1700, Brightness: 0.05, Speed: 0.005},
			},
		},
		{
			name:   "time zone and descriptor",
			scenes: []Scene{{Spec: "CRON_TZ=Europe/Berlin @daily", Temperature: 3000, Brightness: 0.5, Speed: 0.1}},
		},
		{
			name:    "five fields",
			scenes:  []Scene{{Spec: "30 6 * * *", Temperature: 2700, Brightness: 0.3, Speed: 0.01}},
			wantErr: true,
		},
		{
			name:    "invalid target",
			scenes:  []Scene{{Spec: "0 30 6 * * *", Temperature: 2700, Brightness: 3, Speed: 0.01}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(&fakeState{}, tt.scenes)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.scenes), s.Len())
			assert.Len(t, s.cron.Entries(), len(tt.scenes))
		})
	}
}

func TestSceneJob_Run(t *testing.T) {
	state := &fakeState{}
	scene := Scene{Spec: "0 0 7 * * *", Temperature: 4500, Brightness: 0.8, Speed: 0.01}

	s, err := New(state, []Scene{scene})
	require.NoError(t, err)

	entries := s.cron.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()

	require.Len(t, state.targets, 1)
	assert.Equal(t, scene.Target(), state.targets[0])
}

func TestSceneJob_RunError(t *testing.T) {
	state := &fakeState{err: errors.New("rejected")}
	job := sceneJob{state: state, scene: Scene{Spec: "@hourly", Temperature: 3000, Brightness: 0.1, Speed: 0.1}}

	assert.NotPanics(t, job.Run)
	assert.Empty(t, state.targets)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New(&fakeState{}, []Scene{{Spec: "@every 1h", Temperature: 3000, Brightness: 0.1, Speed: 0.1}})
	require.NoError(t, err)

	s.Start()
	ctx := s.Stop()
	<-ctx.Done()
}

func TestCronLogger(t *testing.T) {
	logger := cronLogger{}
	assert.NotPanics(t, func() {
		logger.Info("start", "entries", 1)
		logger.Error(errors.New("boom"), "job panicked", "entry", 2)
	})
}
