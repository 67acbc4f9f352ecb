// Package bufferpool caches heap pages in memory under a bounded capacity,
// evicting the oldest clean page under LRU when full (NO STEAL: dirty pages
// are never evicted), and drives the transaction commit/abort protocol.
package bufferpool

import (
	"container/list"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	log "github.com/sirupsen/logrus"

	"tuplestore/catalog"
	"tuplestore/dberr"
	"tuplestore/lockmanager"
	"tuplestore/storage/page"
	"tuplestore/transaction"
	"tuplestore/types"
)

// DefaultPageSize is the page width used when Config.PageSize is zero.
const DefaultPageSize = 4096

// DefaultNumPages is the cache capacity used when Config.NumPages is zero.
const DefaultNumPages = 50

// Config configures a BufferPool. Zero values fall back to the defaults
// above; PageSize should only be overridden in tests.
type Config struct {
	PageSize int
	NumPages int
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.NumPages == 0 {
		c.NumPages = DefaultNumPages
	}
	return c
}

// BufferPool is the bounded page cache sitting between the execution
// operators and the catalog/heap-file storage layer. It implements
// storage/page.Store.
type BufferPool struct {
	mu sync.Mutex

	cfg     Config
	catalog *catalog.Catalog
	locks   *lockmanager.Manager

	cache map[types.PageID]*page.HeapPage
	lru   *list.List // front = most recently used
	elems map[types.PageID]*list.Element

	metrics *ristretto.Cache[string, int64]
}

// New returns a buffer pool of the given capacity, resolving table lookups
// through cat and page locks through a fresh lock manager.
func New(cfg Config, cat *catalog.Catalog) (*BufferPool, error) {
	cfg = cfg.withDefaults()

	metrics, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: 100,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, dberr.Wrap(err, "init buffer pool metrics cache")
	}

	return &BufferPool{
		cfg:     cfg,
		catalog: cat,
		locks:   lockmanager.New(),
		cache:   make(map[types.PageID]*page.HeapPage),
		lru:     list.New(),
		elems:   make(map[types.PageID]*list.Element),
		metrics: metrics,
	}, nil
}

// Stats reports an approximate cache hit ratio via the ristretto-backed
// counters. Purely observational: nothing in GetPage's eviction path
// consults it, so it never influences which page is evicted.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns the buffer pool's current hit/miss counters.
func (bp *BufferPool) Stats() Stats {
	hits, _ := bp.metrics.Get("hits")
	misses, _ := bp.metrics.Get("misses")
	return Stats{Hits: hits, Misses: misses}
}

func (bp *BufferPool) bumpMetric(key string) {
	cur, _ := bp.metrics.Get(key)
	bp.metrics.Set(key, cur+1, 1)
	bp.metrics.Wait()
}

// GetPage acquires the page lock via the lock manager (may block or abort),
// then returns the page from cache, evicting if necessary to make room on a
// miss.
func (bp *BufferPool) GetPage(tid transaction.ID, pid types.PageID, perm types.Permission) (*page.HeapPage, error) {
	if err := bp.locks.AcquireLock(tid, pid, perm); err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if p, ok := bp.cache[pid]; ok {
		bp.touch(pid)
		bp.bumpMetric("hits")
		return p, nil
	}
	bp.bumpMetric("misses")

	if len(bp.cache) >= bp.cfg.NumPages {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}

	file, err := bp.catalog.DatabaseFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	p, err := file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	bp.putLocked(pid, p)
	return p, nil
}

func (bp *BufferPool) putLocked(pid types.PageID, p *page.HeapPage) {
	bp.cache[pid] = p
	elem := bp.lru.PushFront(pid)
	bp.elems[pid] = elem
}

func (bp *BufferPool) touch(pid types.PageID) {
	if elem, ok := bp.elems[pid]; ok {
		bp.lru.MoveToFront(elem)
	}
}

// evictLocked scans LRU order oldest-first and discards the first clean
// page found; dirty pages are never stolen. Fails with BufferFull if every
// cached page is dirty.
func (bp *BufferPool) evictLocked() error {
	for elem := bp.lru.Back(); elem != nil; elem = elem.Prev() {
		pid := elem.Value.(types.PageID)
		p := bp.cache[pid]
		if p.IsDirty() == nil {
			bp.discardLocked(pid)
			log.WithField("page", pid).Debug("bufferpool: evicted clean page")
			return nil
		}
	}
	return dberr.ErrBufferFull
}

func (bp *BufferPool) discardLocked(pid types.PageID) {
	delete(bp.cache, pid)
	if elem, ok := bp.elems[pid]; ok {
		bp.lru.Remove(elem)
		delete(bp.elems, pid)
	}
}

// DiscardPage removes pid from the cache unconditionally.
func (bp *BufferPool) DiscardPage(pid types.PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.discardLocked(pid)
}

// InsertTuple resolves tableId to its backing file and delegates to it;
// every page the file returns as modified is marked dirty and placed into
// the cache, replacing any prior entry.
func (bp *BufferPool) InsertTuple(tid transaction.ID, tableID types.TableID, t *types.Tuple) error {
	file, err := bp.catalog.DatabaseFile(tableID)
	if err != nil {
		return err
	}
	pages, err := file.(heapFile).InsertTuple(bp, tid, t)
	if err != nil {
		return err
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range pages {
		p.MarkDirty(true, tid)
		bp.discardLocked(p.ID())
		bp.putLocked(p.ID(), p)
	}
	return nil
}

// DeleteTuple resolves t's table via its RecordID and delegates to the
// backing file.
func (bp *BufferPool) DeleteTuple(tid transaction.ID, t *types.Tuple) error {
	rid := t.RecordID()
	if rid == nil {
		return dberr.Wrap(dberr.ErrNotOnThisPage, "tuple has no record id")
	}
	file, err := bp.catalog.DatabaseFile(rid.Page.TableID)
	if err != nil {
		return err
	}
	pages, err := file.(heapFile).DeleteTuple(bp, tid, t)
	if err != nil {
		return err
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, p := range pages {
		p.MarkDirty(true, tid)
		bp.discardLocked(p.ID())
		bp.putLocked(p.ID(), p)
	}
	return nil
}

// heapFile is the subset of catalog.DBFile that also supports tuple-level
// mutation through a page.Store. storage/heapfile.HeapFile satisfies it.
type heapFile interface {
	InsertTuple(store page.Store, tid transaction.ID, t *types.Tuple) ([]*page.HeapPage, error)
	DeleteTuple(store page.Store, tid transaction.ID, t *types.Tuple) ([]*page.HeapPage, error)
}

// TransactionComplete runs the commit/abort protocol: every cached page
// dirtied by tid is flushed and re-snapshotted on commit, or replaced with
// its before-image on abort. All of tid's locks are released either way.
func (bp *BufferPool) TransactionComplete(tid transaction.ID, commit bool) error {
	bp.mu.Lock()
	for pid, p := range bp.cache {
		dirtyTid := p.IsDirty()
		if dirtyTid == nil || *dirtyTid != tid {
			continue
		}
		if commit {
			if err := bp.flushLocked(pid); err != nil {
				bp.mu.Unlock()
				return err
			}
			p.SetBeforeImage()
		} else {
			before, err := p.GetBeforeImage()
			if err != nil {
				bp.mu.Unlock()
				return err
			}
			bp.cache[pid] = before
		}
	}
	bp.mu.Unlock()

	bp.locks.ReleaseAllLocks(tid)
	return nil
}

// FlushPage writes pid's page to disk via its backing file if present and
// dirty, then clears the dirty flag.
func (bp *BufferPool) FlushPage(pid types.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushLocked(pid)
}

func (bp *BufferPool) flushLocked(pid types.PageID) error {
	p, ok := bp.cache[pid]
	if !ok || p.IsDirty() == nil {
		return nil
	}
	file, err := bp.catalog.DatabaseFile(pid.TableID)
	if err != nil {
		return err
	}
	if err := file.WritePage(p); err != nil {
		return err
	}
	p.MarkDirty(false, transaction.ID{})
	return nil
}

// FlushPages flushes every cached page dirtied by tid.
func (bp *BufferPool) FlushPages(tid transaction.ID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid, p := range bp.cache {
		dirtyTid := p.IsDirty()
		if dirtyTid != nil && *dirtyTid == tid {
			if err := bp.flushLocked(pid); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushAllPages flushes every dirty page regardless of owner. Provided for
// testing; calling it mid-transaction breaks the NO-STEAL guarantee the
// rest of the pool relies on.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid := range bp.cache {
		if err := bp.flushLocked(pid); err != nil {
			return err
		}
	}
	return nil
}

// HoldsLock passes through to the lock manager.
func (bp *BufferPool) HoldsLock(tid transaction.ID, pid types.PageID) bool {
	return bp.locks.HoldsLock(tid, pid)
}

// UnsafeReleasePage passes through to the lock manager. Named "unsafe" in
// keeping with the original contract: callers run the risk of violating
// two-phase locking.
func (bp *BufferPool) UnsafeReleasePage(tid transaction.ID, pid types.PageID) {
	bp.locks.ReleaseLock(tid, pid)
}
