// Package heapfile implements a table's on-disk storage as a gap-free
// sequence of fixed-size heap pages in one local file.
package heapfile

import (
	"hash/fnv"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"tuplestore/dberr"
	"tuplestore/storage/page"
	"tuplestore/transaction"
	"tuplestore/types"
)

// HeapFile stores a table's tuples in no particular order across a sequence
// of fixed-size pages in one local file. It works closely with page.HeapPage.
type HeapFile struct {
	path     string
	id       types.TableID
	desc     *types.TupleDesc
	pageSize int
}

// Open opens (creating if necessary) the file at path as a HeapFile backing
// schema desc. The table id is derived deterministically from the absolute
// path so it survives process restarts.
func Open(path string, desc *types.TupleDesc, pageSize int) (*HeapFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, dberr.Wrapf(dberr.ErrIO, "resolve absolute path for %s", path)
	}
	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.Wrapf(dberr.ErrIO, "open heap file %s", abs)
	}
	f.Close()

	h := fnv.New64a()
	h.Write([]byte(abs))
	return &HeapFile{
		path:     abs,
		id:       types.TableID(h.Sum64()),
		desc:     desc,
		pageSize: pageSize,
	}, nil
}

// ID returns the stable table identifier derived from the file's absolute
// path.
func (hf *HeapFile) ID() types.TableID {
	return hf.id
}

// Schema returns the table's fixed schema.
func (hf *HeapFile) Schema() *types.TupleDesc {
	return hf.desc
}

// NumPages computes the current page count from the file's length.
func (hf *HeapFile) NumPages() (int, error) {
	info, err := os.Stat(hf.path)
	if err != nil {
		return 0, dberr.Wrapf(dberr.ErrIO, "stat heap file %s", hf.path)
	}
	return int(info.Size()) / hf.pageSize, nil
}

// ReadPage seeks to pid's offset and parses pageSize bytes into a HeapPage.
func (hf *HeapFile) ReadPage(pid types.PageID) (*page.HeapPage, error) {
	if pid.TableID != hf.id {
		return nil, dberr.Wrapf(dberr.ErrPageOutOfRange, "page %s does not belong to table %d", pid, hf.id)
	}
	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}
	if int(pid.PageNo) >= numPages {
		return nil, dberr.Wrapf(dberr.ErrPageOutOfRange, "page %d out of range (numPages=%d)", pid.PageNo, numPages)
	}

	f, err := os.Open(hf.path)
	if err != nil {
		return nil, dberr.Wrapf(dberr.ErrIO, "open heap file %s", hf.path)
	}
	defer f.Close()

	raw := make([]byte, hf.pageSize)
	offset := int64(pid.PageNo) * int64(hf.pageSize)
	if _, err := f.ReadAt(raw, offset); err != nil {
		return nil, dberr.Wrapf(dberr.ErrIO, "read page %s", pid)
	}
	return page.New(pid, raw, hf.desc, hf.pageSize)
}

// WritePage seeks to the page's offset and overwrites it in place.
func (hf *HeapFile) WritePage(p *page.HeapPage) error {
	f, err := os.OpenFile(hf.path, os.O_RDWR, 0644)
	if err != nil {
		return dberr.Wrapf(dberr.ErrIO, "open heap file %s", hf.path)
	}
	defer f.Close()

	offset := int64(p.ID().PageNo) * int64(hf.pageSize)
	if _, err := f.WriteAt(p.Serialize(), offset); err != nil {
		return dberr.Wrapf(dberr.ErrIO, "write page %s", p.ID())
	}
	return nil
}

// appendEmptyPage extends the file by one zeroed page and returns its id.
func (hf *HeapFile) appendEmptyPage() (types.PageID, error) {
	numPages, err := hf.NumPages()
	if err != nil {
		return types.PageID{}, err
	}
	pid := types.PageID{TableID: hf.id, PageNo: uint32(numPages)}
	f, err := os.OpenFile(hf.path, os.O_RDWR, 0644)
	if err != nil {
		return types.PageID{}, dberr.Wrapf(dberr.ErrIO, "open heap file %s", hf.path)
	}
	defer f.Close()

	empty := make([]byte, hf.pageSize)
	offset := int64(numPages) * int64(hf.pageSize)
	if _, err := f.WriteAt(empty, offset); err != nil {
		return types.PageID{}, dberr.Wrapf(dberr.ErrIO, "extend heap file %s", hf.path)
	}
	log.WithFields(log.Fields{"table": hf.id, "page": pid.PageNo}).Debug("heapfile: extended by one page")
	return pid, nil
}

// InsertTuple scans pages in order for the first with a free slot, acquiring
// each candidate page through store under READ_WRITE; if none has room, the
// file is extended by one empty page. Returns the page(s) that were
// modified, mirroring the original's List<Page> return contract.
func (hf *HeapFile) InsertTuple(store page.Store, tid transaction.ID, t *types.Tuple) ([]*page.HeapPage, error) {
	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}
	for i := 0; i < numPages; i++ {
		pid := types.PageID{TableID: hf.id, PageNo: uint32(i)}
		p, err := store.GetPage(tid, pid, types.ReadWrite)
		if err != nil {
			return nil, err
		}
		if p.GetNumEmptySlots() > 0 {
			if err := p.InsertTuple(t); err != nil {
				return nil, err
			}
			p.MarkDirty(true, tid)
			return []*page.HeapPage{p}, nil
		}
	}

	newPid, err := hf.appendEmptyPage()
	if err != nil {
		return nil, err
	}
	p, err := store.GetPage(tid, newPid, types.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := p.InsertTuple(t); err != nil {
		return nil, err
	}
	p.MarkDirty(true, tid)
	return []*page.HeapPage{p}, nil
}

// DeleteTuple acquires the page referenced by t's RecordID under
// READ_WRITE and clears its slot.
func (hf *HeapFile) DeleteTuple(store page.Store, tid transaction.ID, t *types.Tuple) ([]*page.HeapPage, error) {
	rid := t.RecordID()
	if rid == nil {
		return nil, dberr.Wrapf(dberr.ErrNotOnThisPage, "tuple has no record id")
	}
	p, err := store.GetPage(tid, rid.Page, types.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := p.DeleteTuple(t); err != nil {
		return nil, err
	}
	p.MarkDirty(true, tid)
	return []*page.HeapPage{p}, nil
}

// Iterator returns a whole-file pull iterator yielding every live tuple in
// (pageNumber, slotIndex) order. Pages are fetched under READ_ONLY lazily,
// one page ahead at a time.
func (hf *HeapFile) Iterator(store page.Store, tid transaction.ID) *FileIterator {
	return &FileIterator{hf: hf, store: store, tid: tid}
}

// FileIterator walks every page of a HeapFile in order via a page.Store,
// yielding live tuples. Rewind, or Close followed by Open, restarts it from
// page 0.
type FileIterator struct {
	hf    *HeapFile
	store page.Store
	tid   transaction.ID

	opened   bool
	pageNo   int
	numPages int
	cur      *page.Iterator
}

// Open loads page 0 and prepares the iterator to yield its tuples.
func (it *FileIterator) Open() error {
	numPages, err := it.hf.NumPages()
	if err != nil {
		return err
	}
	it.numPages = numPages
	it.opened = true
	it.pageNo = 0
	if numPages == 0 {
		it.cur = nil
		return nil
	}
	return it.loadPage(0)
}

func (it *FileIterator) loadPage(pageNo int) error {
	pid := types.PageID{TableID: it.hf.id, PageNo: uint32(pageNo)}
	p, err := it.store.GetPage(it.tid, pid, types.ReadOnly)
	if err != nil {
		return err
	}
	it.cur = p.Iterator()
	return nil
}

// HasNext reports whether another live tuple remains, advancing to the next
// non-exhausted page as needed.
func (it *FileIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, dberr.Wrap(dberr.ErrIllegalState, "iterator not open")
	}
	if it.cur == nil {
		return false, nil
	}
	for {
		if it.cur.HasNext() {
			return true, nil
		}
		if it.pageNo >= it.numPages-1 {
			return false, nil
		}
		it.pageNo++
		if err := it.loadPage(it.pageNo); err != nil {
			return false, err
		}
	}
}

// Next returns the next live tuple across the file.
func (it *FileIterator) Next() (*types.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberr.Wrap(dberr.ErrNoSuchElement, "no more tuples in heap file")
	}
	return it.cur.Next()
}

// Rewind restarts the iterator from page 0.
func (it *FileIterator) Rewind() error {
	it.Close()
	return it.Open()
}

// Close releases the iterator's page reference. Locks are released on
// transaction completion, not here.
func (it *FileIterator) Close() {
	it.opened = false
	it.cur = nil
	it.pageNo = 0
}
