package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headwind-sh/headwind/internal/history"
)

func TestAppendAndBound(t *testing.T) {
	var l history.Ledger
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		l = l.Append(history.Entry{
			Slot:           "web",
			ImageOrVersion: "v1." + string(rune('a'+i)),
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
		})
	}
	entries := l.ForSlot("web")
	assert.LessOrEqual(t, len(entries), history.MaxEntriesPerSlot)
	assert.Len(t, entries, history.MaxEntriesPerSlot)

	// strictly monotonic, oldest retained entries are the most recent 10
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
	}
	assert.Equal(t, "v1."+string(rune('a'+14)), entries[len(entries)-1].ImageOrVersion)
}

func TestAppendOtherSlotsUntouched(t *testing.T) {
	var l history.Ledger
	now := time.Now()
	l = l.Append(history.Entry{Slot: "api", ImageOrVersion: "v1", Timestamp: now})
	for i := 0; i < 12; i++ {
		l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "w", Timestamp: now.Add(time.Duration(i) * time.Minute)})
	}
	assert.Len(t, l.ForSlot("api"), 1)
	assert.Len(t, l.ForSlot("web"), history.MaxEntriesPerSlot)
}

func TestAppendClockRegression(t *testing.T) {
	var l history.Ledger
	now := time.Now()
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v1", Timestamp: now})
	// simulate a clock regression: new entry's observed time is before the
	// previous entry's timestamp.
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v2", Timestamp: now.Add(-time.Hour)})

	entries := l.ForSlot("web")
	require.Len(t, entries, 2)
	assert.True(t, entries[1].Timestamp.After(entries[0].Timestamp))
	assert.Equal(t, entries[0].Timestamp.Add(time.Millisecond), entries[1].Timestamp)
}

func TestPenultimate(t *testing.T) {
	var l history.Ledger
	now := time.Now()
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v1", Timestamp: now})
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v2", Timestamp: now.Add(time.Minute)})
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v3", Timestamp: now.Add(2 * time.Minute)})

	prev, ok := l.Penultimate("web")
	require.True(t, ok)
	assert.Equal(t, "v2", prev.ImageOrVersion)
}

func TestIntervalElapsed(t *testing.T) {
	var l history.Ledger
	now := time.Now()
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v1", Timestamp: now})

	assert.False(t, l.IntervalElapsed("web", now.Add(30*time.Second), 5*time.Minute))
	assert.True(t, l.IntervalElapsed("web", now.Add(5*time.Minute), 5*time.Minute))
	assert.True(t, l.IntervalElapsed("db", now, 5*time.Minute))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var l history.Ledger
	l = l.Append(history.Entry{Slot: "web", ImageOrVersion: "v1", Timestamp: time.Now().UTC().Truncate(time.Second), ApprovedBy: "webhook"})

	raw, err := l.Encode()
	require.NoError(t, err)

	decoded, err := history.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, l, decoded)
}

func TestDecodeEmpty(t *testing.T) {
	l, err := history.Decode("")
	require.NoError(t, err)
	assert.Nil(t, l)
}
