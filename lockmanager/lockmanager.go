// Package lockmanager implements per-page shared/exclusive locking with
// upgrade-in-place, wait-for graph deadlock detection, and timeout-based
// abort.
package lockmanager

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tuplestore/dberr"
	"tuplestore/transaction"
	"tuplestore/types"
)

const (
	// DefaultTimeout is how long a request waits for a grant before
	// aborting with TransactionAborted.
	DefaultTimeout = 1000 * time.Millisecond

	// WaitGranularity is how long a blocked request sleeps between
	// grant-condition rechecks.
	WaitGranularity = 50 * time.Millisecond
)

type lockEntry struct {
	tid  transaction.ID
	mode types.Permission
}

// Manager is a monitor: every exported method holds mu for the duration
// except while blocked waiting, which is implemented by sleeping in short
// increments and rechecking rather than a condition variable, so the
// timeout and cycle-detection checks can run between waits.
type Manager struct {
	mu      sync.Mutex
	locks   map[types.PageID][]lockEntry
	held    map[transaction.ID]map[types.PageID]struct{}
	waitFor map[transaction.ID]map[transaction.ID]struct{}

	timeout  time.Duration
	interval time.Duration
}

// New returns an empty lock manager using the default timeout and wait
// granularity.
func New() *Manager {
	return &Manager{
		locks:    make(map[types.PageID][]lockEntry),
		held:     make(map[transaction.ID]map[types.PageID]struct{}),
		waitFor:  make(map[transaction.ID]map[transaction.ID]struct{}),
		timeout:  DefaultTimeout,
		interval: WaitGranularity,
	}
}

// NewWithTimeout returns a lock manager with a configurable timeout and
// poll interval, for tests that need to exercise timeout/deadlock paths
// quickly.
func NewWithTimeout(timeout, interval time.Duration) *Manager {
	m := New()
	m.timeout = timeout
	m.interval = interval
	return m
}

// AcquireLock blocks until tid is granted mode on pid, or returns a
// TransactionAbortedError if a wait-for cycle is detected or the timeout
// elapses.
func (m *Manager) AcquireLock(tid transaction.ID, pid types.PageID, mode types.Permission) error {
	start := time.Now()

	for {
		m.mu.Lock()
		if m.canGrant(tid, pid, mode) {
			m.grant(tid, pid, mode)
			m.removeFromWaitGraph(tid)
			m.mu.Unlock()
			return nil
		}

		for _, l := range m.locks[pid] {
			if l.tid != tid {
				m.addWaitEdge(tid, l.tid)
			}
		}
		if m.hasCycle(tid) {
			m.removeFromWaitGraph(tid)
			m.mu.Unlock()
			log.WithFields(log.Fields{"txn": tid, "page": pid}).Warn("lockmanager: aborting to break wait-for cycle")
			return dberr.NewTransactionAborted(tid, dberr.ReasonDeadlock)
		}
		m.mu.Unlock()

		if time.Since(start) > m.timeout {
			m.mu.Lock()
			m.removeFromWaitGraph(tid)
			m.mu.Unlock()
			return dberr.NewTransactionAborted(tid, dberr.ReasonTimeout)
		}

		time.Sleep(m.interval)
	}
}

// canGrant implements the grant rules: unconditional if no locks exist; a
// shared request succeeds if every existing lock is shared or already held
// by tid; an exclusive request succeeds only if tid already holds the sole
// lock (any mode, upgraded in place) or the page has no other locks at all.
func (m *Manager) canGrant(tid transaction.ID, pid types.PageID, mode types.Permission) bool {
	locks := m.locks[pid]
	if len(locks) == 0 {
		return true
	}

	if mode == types.ReadOnly {
		for _, l := range locks {
			if l.mode == types.ReadWrite && l.tid != tid {
				return false
			}
		}
		return true
	}

	if len(locks) == 1 && locks[0].tid == tid {
		return true
	}
	return false
}

func (m *Manager) grant(tid transaction.ID, pid types.PageID, mode types.Permission) {
	locks := m.locks[pid]
	for i, l := range locks {
		if l.tid == tid {
			if mode == types.ReadWrite {
				locks[i].mode = types.ReadWrite
			}
			m.trackHeld(tid, pid)
			return
		}
	}
	m.locks[pid] = append(locks, lockEntry{tid: tid, mode: mode})
	m.trackHeld(tid, pid)
}

func (m *Manager) trackHeld(tid transaction.ID, pid types.PageID) {
	pages, ok := m.held[tid]
	if !ok {
		pages = make(map[types.PageID]struct{})
		m.held[tid] = pages
	}
	pages[pid] = struct{}{}
}

// ReleaseLock removes every entry for tid on pid, from both the page's lock
// list and tid's held-set.
func (m *Manager) ReleaseLock(tid transaction.ID, pid types.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(tid, pid)
}

func (m *Manager) releaseLocked(tid transaction.ID, pid types.PageID) {
	locks := m.locks[pid]
	for i := 0; i < len(locks); i++ {
		if locks[i].tid == tid {
			locks = append(locks[:i], locks[i+1:]...)
			i--
		}
	}
	if len(locks) == 0 {
		delete(m.locks, pid)
	} else {
		m.locks[pid] = locks
	}

	if pages, ok := m.held[tid]; ok {
		delete(pages, pid)
		if len(pages) == 0 {
			delete(m.held, tid)
		}
	}
}

// ReleaseAllLocks releases every lock tid currently holds.
func (m *Manager) ReleaseAllLocks(tid transaction.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pages := make([]types.PageID, 0, len(m.held[tid]))
	for pid := range m.held[tid] {
		pages = append(pages, pid)
	}
	for _, pid := range pages {
		m.releaseLocked(tid, pid)
	}
	delete(m.held, tid)
	m.removeFromWaitGraph(tid)
}

// HoldsLock reports whether tid currently holds any lock on pid.
func (m *Manager) HoldsLock(tid transaction.ID, pid types.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.locks[pid] {
		if l.tid == tid {
			return true
		}
	}
	return false
}

func (m *Manager) addWaitEdge(from, to transaction.ID) {
	edges, ok := m.waitFor[from]
	if !ok {
		edges = make(map[transaction.ID]struct{})
		m.waitFor[from] = edges
	}
	edges[to] = struct{}{}
}

func (m *Manager) removeFromWaitGraph(tid transaction.ID) {
	delete(m.waitFor, tid)
	for _, edges := range m.waitFor {
		delete(edges, tid)
	}
}

// hasCycle runs a depth-first traversal from start through the wait-for
// graph; a back-edge to start indicates a cycle.
func (m *Manager) hasCycle(start transaction.ID) bool {
	visited := make(map[transaction.ID]struct{})
	return m.dfs(start, start, visited)
}

func (m *Manager) dfs(start, current transaction.ID, visited map[transaction.ID]struct{}) bool {
	for neighbor := range m.waitFor[current] {
		if neighbor == start {
			return true
		}
		if _, seen := visited[neighbor]; seen {
			continue
		}
		visited[neighbor] = struct{}{}
		if m.dfs(start, neighbor, visited) {
			return true
		}
	}
	return false
}
