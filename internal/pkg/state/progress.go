// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package state

import (
	"fmt"
	"os"
	"strings"
)

// Milestone is a point in the installation the machine has verifiably
// passed. Milestones are strictly ordered; the marker only moves forward.
type Milestone int

const (
	// MilestoneNone means no milestone has been reached.
	MilestoneNone Milestone = iota
	// MilestonePartitionsReady means the disk is partitioned, formatted
	// and mounted.
	MilestonePartitionsReady
	// MilestoneBaseInstalled means the base system has been installed by
	// a downstream phase.
	MilestoneBaseInstalled
	// MilestoneUserSetupCompleted means user-level setup has finished.
	MilestoneUserSetupCompleted
)

func (m Milestone) String() string {
	switch m {
	case MilestoneNone:
		return "none"
	case MilestonePartitionsReady:
		return "partitions-ready"
	case MilestoneBaseInstalled:
		return "base-installed"
	case MilestoneUserSetupCompleted:
		return "user-setup-completed"
	default:
		return fmt.Sprintf("Milestone(%d)", int(m))
	}
}

// ParseMilestone parses a marker file token.
func ParseMilestone(s string) (Milestone, error) {
	switch s {
	case "", "none":
		return MilestoneNone, nil
	case "partitions-ready":
		return MilestonePartitionsReady, nil
	case "base-installed":
		return MilestoneBaseInstalled, nil
	case "user-setup-completed":
		return MilestoneUserSetupCompleted, nil
	default:
		return 0, fmt.Errorf("unknown milestone %q", s)
	}
}

// Reached reports whether this milestone implies target has been passed.
// A later marker means every earlier phase's work is done.
func (m Milestone) Reached(target Milestone) bool {
	return m >= target
}

// DefaultMarkerPath is the transient progress marker location.
const DefaultMarkerPath = "/tmp/installer.progress"

// Marker is the single-token progress marker file.
type Marker struct {
	path string
}

// NewMarker returns a Marker stored at path.
func NewMarker(path string) *Marker {
	if path == "" {
		path = DefaultMarkerPath
	}

	return &Marker{path: path}
}

// Read returns the current milestone. A missing file means none.
func (m *Marker) Read() (Milestone, error) {
	body, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return MilestoneNone, nil
		}

		return 0, fmt.Errorf("read progress marker %s: %w", m.path, err)
	}

	milestone, err := ParseMilestone(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("read progress marker %s: %w", m.path, err)
	}

	return milestone, nil
}

// Advance moves the marker to milestone. Moving backward is refused.
func (m *Marker) Advance(milestone Milestone) error {
	current, err := m.Read()
	if err != nil {
		return err
	}

	if current > milestone {
		return fmt.Errorf("progress marker is already at %s, refusing to move back to %s", current, milestone)
	}

	if err := os.WriteFile(m.path, []byte(milestone.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("write progress marker %s: %w", m.path, err)
	}

	return nil
}
