// SPDX-License-Identifier: GPL-3.0-only

// Package schedule changes the light target at fixed times of the day.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/bestelampe/lampd/internal/control"
)

// Scene is a target that is applied whenever Spec fires.
// Spec is a cron expression with a leading seconds field and may start with
// CRON_TZ=<zone>.
type Scene struct {
	Spec        string
	Temperature float64
	Brightness  float64
	Speed       float64
}

// Target returns the control target of the scene.
func (s Scene) Target() control.Target {
	return control.Target{Temperature: s.Temperature, Brightness: s.Brightness, Speed: s.Speed}
}

// TargetSetter is the part of control.State used by the scheduler.
type TargetSetter interface {
	Set(t control.Target) error
}

type sceneJob struct {
	state TargetSetter
	scene Scene
}

func (j sceneJob) Run() {
	if err := j.state.Set(j.scene.Target()); err != nil {
		log.Error().Err(err).Str("spec", j.scene.Spec).Msg("Failed to apply scene")
		return
	}
	log.Info().
		Str("spec", j.scene.Spec).
		Float64("temperature", j.scene.Temperature).
		Float64("brightness", j.scene.Brightness).
		Msg("Scene applied")
}

// Scheduler runs scenes on their cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	scenes []Scene
}

// Parser parses scene specs: seconds, minutes, hours, day of month, month,
// day of week, plus descriptors such as @daily.
var Parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a scheduler. Every scene is validated before anything is
// scheduled.
func New(state TargetSetter, scenes []Scene) (*Scheduler, error) {
	c := cron.New(cron.WithParser(Parser), cron.WithLogger(cronLogger{}))

	for i, scene := range scenes {
		if err := scene.Target().Validate(); err != nil {
			return nil, fmt.Errorf("scene %d (%s): %w", i, scene.Spec, err)
		}
		if _, err := c.AddJob(scene.Spec, sceneJob{state: state, scene: scene}); err != nil {
			return nil, fmt.Errorf("scene %d: invalid spec %q: %w", i, scene.Spec, err)
		}
	}

	return &Scheduler{cron: c, scenes: scenes}, nil
}

// Len returns the number of scheduled scenes.
func (s *Scheduler) Len() int {
	return len(s.scenes)
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("scenes", len(s.scenes)).Msg("Scene schedule started")
}

// Stop stops the scheduler. The returned context is done once running jobs
// have completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts cron.Logger to the global zerolog logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
