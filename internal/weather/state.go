package weather

import (
	"fmt"
	"time"
)

// PermissionDeniedReason is the failure reason of a refresh attempted
// without location permission.
const PermissionDeniedReason = "Location permission not granted"

const (
	locationUnavailableReason = "Location unavailable"
	weatherUnavailableReason  = "Weather unavailable"
)

// Phase is the tag of a State.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*p = PhaseIdle
	case "loading":
		*p = PhaseLoading
	case "success":
		*p = PhaseSuccess
	case "failed":
		*p = PhaseFailed
	default:
		return fmt.Errorf("unknown refresh phase %q", b)
	}
	return nil
}

// State is the externally observed state of the weather pane. Values are
// never mutated; every transition returns a new State.
//
// Loading and Failed carry the previously displayed snapshot and the time
// of the last success so a failed attempt degrades to stale data. Units is
// the system the snapshot is expressed in.
type State struct {
	Phase     Phase      `json:"phase"`
	Units     UnitSystem `json:"units"`
	Snapshot  *Snapshot  `json:"snapshot,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Begin moves to Loading, keeping whatever was displayed.
func (s State) Begin() State {
	return State{Phase: PhaseLoading, Units: s.Units, Snapshot: s.Snapshot, UpdatedAt: s.UpdatedAt}
}

// Succeed displays snap as of at. snap must be in s.Units.
func (s State) Succeed(snap Snapshot, at time.Time) State {
	return State{Phase: PhaseSuccess, Units: s.Units, Snapshot: &snap, UpdatedAt: &at}
}

// Fail records reason, keeping the previous snapshot and updated-at.
func (s State) Fail(reason string) State {
	return State{Phase: PhaseFailed, Units: s.Units, Snapshot: s.Snapshot, UpdatedAt: s.UpdatedAt, Reason: reason}
}

// Deny is Fail with PermissionDeniedReason.
func (s State) Deny() State {
	return s.Fail(PermissionDeniedReason)
}

// ConvertUnits re-expresses the displayed snapshot in another unit system.
// The phase is unchanged.
func (s State) ConvertUnits(from, to UnitSystem) State {
	s.Units = to
	if s.Snapshot == nil || from == to {
		return s
	}
	converted := Convert(*s.Snapshot, from, to)
	s.Snapshot = &converted
	return s
}

// HasData reports whether a snapshot is displayed.
func (s State) HasData() bool {
	return s.Snapshot != nil
}

func reasonFor(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
