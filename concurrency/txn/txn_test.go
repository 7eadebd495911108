package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"daemondb/storage/page"
)

func TestNewTransactionStartsGrowing(t *testing.T) {
	tr := New(1, RepeatableRead)
	require.Equal(t, Growing, tr.GetState())
	require.Equal(t, int64(1), tr.GetTransactionID())
	require.Equal(t, RepeatableRead, tr.GetIsolationLevel())
}

func TestLockSetsTrackRIDs(t *testing.T) {
	tr := New(1, ReadCommitted)
	rid := page.RID{PageID: 3, Slot: 0}

	tr.GetSharedLockSet()[rid] = struct{}{}
	_, ok := tr.GetSharedLockSet()[rid]
	require.True(t, ok)

	delete(tr.GetExclusiveLockSet(), rid)
	require.Empty(t, tr.GetExclusiveLockSet())
}

func TestPageSetTracksHeldLatches(t *testing.T) {
	tr := New(1, RepeatableRead)
	var p1, p2 page.Page
	p1.ID, p2.ID = 1, 2

	tr.AddIntoPageSet(&p1, true)
	tr.AddIntoPageSet(&p2, false)

	held := tr.GetPageSet()
	require.Len(t, held, 2)
	require.True(t, held[0].Write)
	require.False(t, held[1].Write)
	require.Equal(t, page.ID(1), held[0].Page.ID)

	tr.ClearPageSet()
	require.Empty(t, tr.GetPageSet())
}

func TestDeletedPageSetRoundTrip(t *testing.T) {
	tr := New(1, ReadCommitted)
	tr.AddIntoDeletedPageSet(5)
	tr.AddIntoDeletedPageSet(6)
	require.Len(t, tr.GetDeletedPageSet(), 2)

	tr.ClearDeletedPageSet()
	require.Empty(t, tr.GetDeletedPageSet())
}

func TestAbortErrorMessage(t *testing.T) {
	err := &AbortError{TxnID: 7, Reason: Deadlock}
	require.Contains(t, err.Error(), "7")
	require.Contains(t, err.Error(), "DEADLOCK")
}
