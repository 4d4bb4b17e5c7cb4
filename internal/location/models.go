package location

import (
	"errors"
	"time"
)

// ErrLocationUnavailable is reported when every fallback tier came up empty.
var ErrLocationUnavailable = errors.New("location unavailable")

// Tier is the accuracy tier a fix was obtained at.
type Tier int

const (
	TierPrecise Tier = iota
	TierBalanced
	TierLastKnown
	TierLegacy
)

func (t Tier) String() string {
	switch t {
	case TierPrecise:
		return "precise"
	case TierBalanced:
		return "balanced"
	case TierLastKnown:
		return "last_known"
	case TierLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// GeoFix is a single coordinate reading. It is a value type and never shared.
type GeoFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CapturedAt time.Time `json:"capturedAt"`
	Tier       Tier      `json:"tier"`
}

// withTier returns a copy of the fix tagged with t.
func (f GeoFix) withTier(t Tier) GeoFix {
	f.Tier = t
	return f
}

// Priority selects the power/accuracy trade-off of a fresh primary fix.
type Priority int

const (
	PriorityBalanced Priority = iota
	PriorityHighAccuracy
)

func (p Priority) String() string {
	if p == PriorityHighAccuracy {
		return "high_accuracy"
	}
	return "balanced"
}

// SourceID names one source of the secondary provider.
type SourceID string

const (
	SourceGPS     SourceID = "gps"
	SourceNetwork SourceID = "network"
)

// Criteria describes the source wanted for a single live update.
type Criteria struct {
	Coarse   bool
	LowPower bool
}
