package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushHistory_SixthEntryEvictsOldest(t *testing.T) {
	var entries []HistoryEntry
	for i := 1; i <= 6; i++ {
		entries = PushHistory(entries, HistoryEntry{Timestamp: fmt.Sprintf("t%d", i), Success: true}, DefaultHistoryLimit)
	}

	require.Len(t, entries, 5)
	assert.Equal(t, "t6", entries[0].Timestamp, "most recent first")
	assert.Equal(t, "t2", entries[4].Timestamp, "t1 should have been discarded")
}

func TestPushHistory_DoesNotMutateInput(t *testing.T) {
	in := []HistoryEntry{{Timestamp: "a"}, {Timestamp: "b"}}

	out := PushHistory(in, HistoryEntry{Timestamp: "c"}, 2)

	assert.Equal(t, []HistoryEntry{{Timestamp: "c"}, {Timestamp: "a"}}, out)
	assert.Equal(t, "a", in[0].Timestamp)
	assert.Equal(t, "b", in[1].Timestamp)
}

func TestPushHistory_NonPositiveLimitUsesDefault(t *testing.T) {
	var entries []HistoryEntry
	for i := 0; i < 10; i++ {
		entries = PushHistory(entries, HistoryEntry{}, 0)
	}
	assert.Len(t, entries, DefaultHistoryLimit)
}
