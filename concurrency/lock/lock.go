// Package lock implements a per-RID shared/exclusive Lock Manager
// enforcing strict two-phase locking, with a background deadlock
// detector over the waits-for graph. Grounded on the original BusTub
// LockManager (original_source/src/concurrency/lock_manager.cpp),
// reworked in the teacher's error-wrapping and bracketed-logging idiom.
package lock

import (
	"fmt"
	"sync"
	"time"

	"daemondb/concurrency/txn"
	"daemondb/storage/page"
)

// Manager owns one lock table (keyed by RID) and the registry of
// transactions it has seen, all protected by a single coarse mutex. Per
// spec, disk I/O never happens under this lock — only request-queue
// bookkeeping and condition-variable signaling do.
type Manager struct {
	mu sync.Mutex

	queues map[page.RID]*queue
	txns   map[int64]*txn.Transaction

	interval time.Duration
	stopCh   chan struct{}
	stopped  bool
}

// NewManager constructs a lock manager and starts its background
// deadlock detector, which rebuilds the waits-for graph and aborts a
// victim transaction every interval as long as a cycle remains.
func NewManager(interval time.Duration) *Manager {
	m := &Manager{
		queues:   make(map[page.RID]*queue),
		txns:     make(map[int64]*txn.Transaction),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	go m.runDetector()
	return m
}

// Close stops the background detector. Safe to call once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	close(m.stopCh)
}

func (m *Manager) getOrCreateQueue(rid page.RID) *queue {
	q, ok := m.queues[rid]
	if !ok {
		q = newQueue(&m.mu)
		m.queues[rid] = q
	}
	return q
}

func (m *Manager) registerTxn(t *txn.Transaction) {
	m.txns[t.GetTransactionID()] = t
}

// LockShared acquires a shared lock on rid for t, blocking until granted.
func (m *Manager) LockShared(t *txn.Transaction, rid page.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerTxn(t)

	if t.GetIsolationLevel() == txn.ReadUncommitted {
		t.SetState(txn.Aborted)
		return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.LockSharedOnReadUncommitted}
	}
	if t.GetState() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.LockOnShrinking}
	}

	q := m.getOrCreateQueue(rid)
	req := &request{txnID: t.GetTransactionID(), mode: Shared}
	q.requests = append(q.requests, req)

	for !q.canGrantShared() {
		if t.GetState() == txn.Aborted {
			q.removeRequest(t.GetTransactionID())
			return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.Deadlock}
		}
		q.cond.Wait()
		if t.GetState() == txn.Aborted {
			q.removeRequest(t.GetTransactionID())
			return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.Deadlock}
		}
	}

	req.granted = true
	q.shareCount++
	t.GetSharedLockSet()[rid] = struct{}{}
	fmt.Printf("[LockManager] GRANT S txn=%d rid=%s\n", t.GetTransactionID(), rid)
	return true, nil
}

// LockExclusive acquires an exclusive lock on rid for t, blocking until
// granted.
func (m *Manager) LockExclusive(t *txn.Transaction, rid page.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerTxn(t)

	if t.GetState() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.LockOnShrinking}
	}

	q := m.getOrCreateQueue(rid)
	req := &request{txnID: t.GetTransactionID(), mode: Exclusive}
	q.requests = append(q.requests, req)

	for !q.canGrantExclusive() {
		if t.GetState() == txn.Aborted {
			q.removeRequest(t.GetTransactionID())
			return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.Deadlock}
		}
		q.cond.Wait()
		if t.GetState() == txn.Aborted {
			q.removeRequest(t.GetTransactionID())
			return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.Deadlock}
		}
	}

	req.granted = true
	q.isWriting = true
	t.GetExclusiveLockSet()[rid] = struct{}{}
	fmt.Printf("[LockManager] GRANT X txn=%d rid=%s\n", t.GetTransactionID(), rid)
	return true, nil
}

// LockUpgrade converts t's existing shared lock on rid into an
// exclusive one. Only one outstanding upgrade per RID is allowed.
func (m *Manager) LockUpgrade(t *txn.Transaction, rid page.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerTxn(t)

	if t.GetState() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.LockOnShrinking}
	}

	q := m.getOrCreateQueue(rid)
	if q.upgrading {
		t.SetState(txn.Aborted)
		return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.UpgradeConflict}
	}

	req := q.findRequest(t.GetTransactionID())
	if req == nil || !req.granted || req.mode != Shared {
		return false, fmt.Errorf("lock: upgrade: txn %d holds no shared lock on %s", t.GetTransactionID(), rid)
	}

	q.shareCount--
	req.mode = Exclusive
	req.granted = false
	q.upgrading = true
	delete(t.GetSharedLockSet(), rid)

	for !q.canGrantExclusive() {
		if t.GetState() == txn.Aborted {
			q.removeRequest(t.GetTransactionID())
			q.upgrading = false
			return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.Deadlock}
		}
		q.cond.Wait()
		if t.GetState() == txn.Aborted {
			q.removeRequest(t.GetTransactionID())
			q.upgrading = false
			return false, &txn.AbortError{TxnID: t.GetTransactionID(), Reason: txn.Deadlock}
		}
	}

	req.granted = true
	q.isWriting = true
	q.upgrading = false
	t.GetExclusiveLockSet()[rid] = struct{}{}
	fmt.Printf("[LockManager] GRANT UPGRADE->X txn=%d rid=%s\n", t.GetTransactionID(), rid)
	return true, nil
}

// Unlock releases t's lock on rid, if any, waking whichever waiters that
// release makes grantable. Returns false if t held no lock on rid.
func (m *Manager) Unlock(t *txn.Transaction, rid page.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[rid]
	if !ok {
		return false, nil
	}
	req := q.removeRequest(t.GetTransactionID())
	if req == nil {
		return false, nil
	}

	wasShared := req.mode == Shared
	if req.granted {
		if req.mode == Exclusive {
			q.isWriting = false
			q.cond.Broadcast()
		} else {
			q.shareCount--
			if q.shareCount == 0 {
				q.cond.Broadcast()
			}
		}
	}

	if !(wasShared && t.GetIsolationLevel() == txn.ReadCommitted) {
		if t.GetState() == txn.Growing {
			t.SetState(txn.Shrinking)
		}
	}

	delete(t.GetSharedLockSet(), rid)
	delete(t.GetExclusiveLockSet(), rid)
	return true, nil
}
