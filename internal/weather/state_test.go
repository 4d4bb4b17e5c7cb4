package weather

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Transitions(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{LocationLabel: "Prague", Current: Current{Temperature: 10}}

	var s State
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.HasData())

	loading := s.Begin()
	assert.Equal(t, PhaseLoading, loading.Phase)
	assert.Nil(t, loading.Snapshot)

	ok := loading.Succeed(snap, at)
	require.True(t, ok.HasData())
	assert.Equal(t, PhaseSuccess, ok.Phase)
	assert.Equal(t, at, *ok.UpdatedAt)
	assert.Empty(t, ok.Reason)

	again := ok.Begin()
	assert.Equal(t, PhaseLoading, again.Phase)
	assert.Same(t, ok.Snapshot, again.Snapshot)
	assert.Equal(t, at, *again.UpdatedAt)

	failed := again.Fail("boom")
	assert.Equal(t, PhaseFailed, failed.Phase)
	assert.Equal(t, "boom", failed.Reason)
	assert.Equal(t, "Prague", failed.Snapshot.LocationLabel)
	assert.Equal(t, at, *failed.UpdatedAt)

	denied := failed.Deny()
	assert.Equal(t, PermissionDeniedReason, denied.Reason)
	assert.Equal(t, "Location permission not granted", denied.Reason)

	assert.Equal(t, PhaseSuccess, ok.Phase, "transitions never mutate the receiver")
}

func TestState_ConvertUnits(t *testing.T) {
	snap := Snapshot{Current: Current{Temperature: 100}}
	s := State{}.Succeed(snap, time.Now())

	imperial := s.ConvertUnits(Metric, Imperial)
	assert.Equal(t, PhaseSuccess, imperial.Phase)
	assert.InDelta(t, 212.0, imperial.Snapshot.Current.Temperature, 1e-9)
	assert.InDelta(t, 100.0, s.Snapshot.Current.Temperature, 1e-9)
	assert.Equal(t, Imperial, imperial.Units)
	assert.Equal(t, Metric, s.Units)
	assert.Equal(t, Imperial, imperial.Fail("Weather unavailable").Units, "units survive later transitions")

	empty := State{}.Begin().ConvertUnits(Metric, Imperial)
	assert.Nil(t, empty.Snapshot)
	assert.Equal(t, Imperial, empty.Units)
}

func TestState_JSON(t *testing.T) {
	s := State{}.Fail("Location unavailable")

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"failed","units":"metric","reason":"Location unavailable"}`, string(b))

	var decoded State
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, PhaseFailed, decoded.Phase)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, "fallback", reasonFor(nil, "fallback"))
	assert.Equal(t, "fallback", reasonFor(errors.New(""), "fallback"))
	assert.Equal(t, "timeout", reasonFor(errors.New("timeout"), "fallback"))
}
