package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusStarted, StatusConfirmed},
		{StatusConfirmed, StatusApproved},
		{StatusConfirmed, StatusPaid},
		{StatusConfirmed, StatusRejected},
		{StatusApproved, StatusPaid},
		{StatusApproved, StatusRejected},
		{StatusPaid, StatusRejected},
	}
	for _, e := range legal {
		assert.True(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	illegal := [][2]Status{
		{StatusStarted, StatusApproved},
		{StatusStarted, StatusPaid},
		{StatusStarted, StatusRejected},
		{StatusPaid, StatusApproved},
		{StatusApproved, StatusConfirmed},
		{StatusRejected, StatusConfirmed},
		{StatusRejected, StatusApproved},
		{StatusConfirmed, StatusConfirmed},
		{StatusConfirmed, StatusStarted},
	}
	for _, e := range illegal {
		assert.False(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, ValidateTransition(StatusConfirmed, StatusPaid))

	err := ValidateTransition(StatusRejected, StatusPaid)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusRejected, te.From)
	assert.Equal(t, StatusPaid, te.To)
	assert.Equal(t, "illegal transition REJECTED -> PAID", err.Error())
}

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("PENDING_REVIEW")
	assert.Error(t, err)
	_, err = ParseStatus("confirmed")
	assert.Error(t, err)
}

func TestIsActive(t *testing.T) {
	for _, s := range ActiveStatuses {
		assert.True(t, s.IsActive())
	}
	assert.False(t, StatusStarted.IsActive())
	assert.False(t, StatusRejected.IsActive())
}

func TestNewAvailability(t *testing.T) {
	a := NewAvailability(30, 28)
	assert.Equal(t, Availability{Total: 30, Taken: 28, Left: 2}, a)
	assert.True(t, a.Fits(2))
	assert.False(t, a.Fits(3))

	// total lowered below taken never yields negative left
	a = NewAvailability(10, 14)
	assert.Equal(t, 0, a.Left)
	assert.Equal(t, 100, a.Pct())
}

func TestPct(t *testing.T) {
	assert.Equal(t, 0, NewAvailability(0, 0).Pct())
	assert.Equal(t, 93, NewAvailability(30, 28).Pct())
	assert.Equal(t, 50, NewAvailability(30, 15).Pct())
}
