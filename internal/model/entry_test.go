package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to EntryStatus
		ok       bool
	}{
		{StatusWaiting, StatusCalled, true},
		{StatusWaiting, StatusCompleted, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusCalled, StatusCompleted, true},
		{StatusCalled, StatusCancelled, true},
		{StatusCalled, StatusCalled, false},
		{StatusCalled, StatusWaiting, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusCalled, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCancelled, StatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEntryStatusTerminal(t *testing.T) {
	assert.False(t, StatusWaiting.Terminal())
	assert.False(t, StatusCalled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())

	assert.True(t, StatusWaiting.Active())
	assert.True(t, StatusCalled.Active())
	assert.False(t, StatusCompleted.Active())
	assert.False(t, StatusCancelled.Active())
}
