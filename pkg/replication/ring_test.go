package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/pkg/wal"
)

func TestWalRingSinceReturnsEntriesAfterOffset(t *testing.T) {
	r := newWalRing(10)
	for i := uint64(1); i <= 5; i++ {
		r.push(ringItem{offset: i, entry: wal.Entry{Type: wal.EntryNodeCreate, Offset: i}})
	}

	items, ok := r.since(3)
	require.True(t, ok)
	require.Len(t, items, 2)
	require.Equal(t, uint64(4), items[0].offset)
	require.Equal(t, uint64(5), items[1].offset)
}

func TestWalRingSinceZeroReturnsEverything(t *testing.T) {
	r := newWalRing(10)
	r.push(ringItem{offset: 1})
	r.push(ringItem{offset: 2})

	items, ok := r.since(0)
	require.True(t, ok)
	require.Len(t, items, 2)
}

func TestWalRingSinceTipReturnsNothingButOK(t *testing.T) {
	r := newWalRing(10)
	r.push(ringItem{offset: 1})
	r.push(ringItem{offset: 2})

	items, ok := r.since(2)
	require.True(t, ok)
	require.Empty(t, items)
}

func TestWalRingEmptyRingReportsOKWithNothingToSend(t *testing.T) {
	r := newWalRing(10)
	items, ok := r.since(0)
	require.True(t, ok)
	require.Empty(t, items)
}

func TestWalRingEvictsOldestAtCapacity(t *testing.T) {
	r := newWalRing(3)
	for i := uint64(1); i <= 5; i++ {
		r.push(ringItem{offset: i})
	}
	require.Equal(t, uint64(5), r.tip())

	// offset 2 aged out once 5 entries were pushed into a 3-slot ring,
	// so the caller is told it needs a snapshot instead of a partial tail.
	_, ok := r.since(2)
	require.False(t, ok)

	items, ok := r.since(3)
	require.True(t, ok)
	require.Len(t, items, 2)
	require.Equal(t, uint64(4), items[0].offset)
	require.Equal(t, uint64(5), items[1].offset)
}

func TestWalRingZeroCapacityFallsBackToDefault(t *testing.T) {
	r := newWalRing(0)
	require.Equal(t, defaultRingCapacity, r.capacity)
}

func TestWalRingTipOfEmptyRingIsZero(t *testing.T) {
	r := newWalRing(10)
	require.Equal(t, uint64(0), r.tip())
}
