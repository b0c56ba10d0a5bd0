package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceWrapsAround(t *testing.T) {
	state := CampaignRotationState{}
	state.Reset([]string{"A", "B"})
	now := time.Unix(0, 0)

	assert.Equal(t, "A", state.Advance(now))
	assert.Equal(t, "B", state.Advance(now))
	assert.Equal(t, "A", state.Advance(now))
	assert.EqualValues(t, 3, state.TotalLeadsRouted)
	assert.True(t, state.Matches([]string{"A", "B"}))
	assert.False(t, state.Matches([]string{"B", "A"}))
}

func TestAdvanceRecoversFromOutOfRangeIndex(t *testing.T) {
	state := CampaignRotationState{}
	state.Reset([]string{"A", "B"})
	state.LastUsedIndex = 7

	assert.Equal(t, "A", state.Advance(time.Unix(0, 0)))
}
