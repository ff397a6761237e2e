// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pipeline runs installation phases as ordered steps gated by the
// persisted progress marker.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/forgelinux/installer/internal/pkg/state"
)

// Step is one unit of work within a phase. Cleanup, when set, undoes the
// step's effects; it runs only if a later step fails.
type Step struct {
	Name    string
	Run     func(ctx context.Context, cfg *state.Config) error
	Cleanup func(cfg *state.Config)
}

// Runner executes phases against the shared config, consulting the
// progress marker before and advancing it after.
type Runner struct {
	marker *state.Marker
	printf func(string, ...any)
}

// NewRunner builds a Runner logging via printf.
func NewRunner(marker *state.Marker, printf func(string, ...any)) *Runner {
	if printf == nil {
		printf = log.Printf
	}

	return &Runner{
		marker: marker,
		printf: printf,
	}
}

// Run executes the steps of a phase in order. If the marker already shows
// milestone (or a later one) the phase is skipped as done. On a step
// failure or context cancellation, cleanups of completed steps run in
// reverse and the marker stays untouched. On success the marker advances
// to milestone.
func (r *Runner) Run(ctx context.Context, cfg *state.Config, milestone state.Milestone, steps []Step) error {
	current, err := r.marker.Read()
	if err != nil {
		return err
	}

	if current.Reached(milestone) {
		r.printf("phase %s already completed (marker at %s), skipping", milestone, current)

		return nil
	}

	var completed []Step

	rollback := func(cfg *state.Config) {
		for i := len(completed) - 1; i >= 0; i-- {
			if completed[i].Cleanup == nil {
				continue
			}

			r.printf("cleaning up after step %q", completed[i].Name)
			completed[i].Cleanup(cfg)
		}
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			rollback(cfg)

			return fmt.Errorf("phase %s interrupted before step %q: %w", milestone, step.Name, err)
		}

		r.printf("running step %q", step.Name)

		if err := step.Run(ctx, cfg); err != nil {
			rollback(cfg)

			return fmt.Errorf("step %q: %w", step.Name, err)
		}

		completed = append(completed, step)
	}

	if err := r.marker.Advance(milestone); err != nil {
		return err
	}

	r.printf("phase complete, marker advanced to %s", milestone)

	return nil
}
