// Package engine wires the catalog, buffer pool, and transaction manager
// into one explicit context, in place of a process-wide singleton: callers
// construct one Database, pass it (or its parts) to operators, and call
// Close when done.
package engine

import (
	log "github.com/sirupsen/logrus"

	"tuplestore/bufferpool"
	"tuplestore/catalog"
	"tuplestore/dberr"
	"tuplestore/storage/heapfile"
	"tuplestore/transaction"
	"tuplestore/types"
)

// Config configures a Database. Zero values fall back to bufferpool's
// defaults.
type Config struct {
	PageSize int
	NumPages int
}

// Database bundles the storage and concurrency layers behind one explicit
// handle: a Catalog of tables, a BufferPool caching their pages, and a
// transaction Manager tracking which transactions are still active.
type Database struct {
	Catalog      *catalog.Catalog
	BufferPool   *bufferpool.BufferPool
	Transactions *transaction.Manager

	pageSize int
}

// Open constructs a fresh Database with an empty catalog and buffer pool.
func Open(cfg Config) (*Database, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = bufferpool.DefaultPageSize
	}
	cat := catalog.New()
	bp, err := bufferpool.New(bufferpool.Config{PageSize: cfg.PageSize, NumPages: cfg.NumPages}, cat)
	if err != nil {
		return nil, dberr.Wrap(err, "open buffer pool")
	}
	return &Database{
		Catalog:      cat,
		BufferPool:   bp,
		Transactions: transaction.NewManager(),
		pageSize:     cfg.PageSize,
	}, nil
}

// OpenTable opens (creating if necessary) a heap file at path as a table
// with the given schema, and registers it in the catalog.
func (db *Database) OpenTable(path, name, pkeyField string, desc *types.TupleDesc) (types.TableID, error) {
	hf, err := heapfile.Open(path, desc, db.pageSize)
	if err != nil {
		return 0, err
	}
	db.Catalog.AddTable(hf, name, pkeyField)
	return hf.ID(), nil
}

// LoadSchema parses the catalog text format and opens/registers every table
// it names, using this database's page size for each backing heap file.
func (db *Database) LoadSchema(catalogFile string) error {
	return catalog.LoadSchema(db.Catalog, catalogFile, func(path string, desc *types.TupleDesc) (catalog.DBFile, error) {
		return heapfile.Open(path, desc, db.pageSize)
	})
}

// Begin starts a new transaction.
func (db *Database) Begin() transaction.ID {
	return db.Transactions.Begin()
}

// Commit runs the buffer pool's commit protocol for tid and records its
// outcome in the transaction manager.
func (db *Database) Commit(tid transaction.ID) error {
	if err := db.BufferPool.TransactionComplete(tid, true); err != nil {
		return err
	}
	db.Transactions.Commit(tid)
	return nil
}

// Abort runs the buffer pool's abort protocol for tid and records its
// outcome in the transaction manager.
func (db *Database) Abort(tid transaction.ID) error {
	if err := db.BufferPool.TransactionComplete(tid, false); err != nil {
		return err
	}
	db.Transactions.Abort(tid)
	return nil
}

// Close flushes every dirty page and drops the buffer pool's cache. It does
// not aim to be safe to call concurrently with in-flight transactions.
func (db *Database) Close() error {
	if err := db.BufferPool.FlushAllPages(); err != nil {
		return dberr.Wrap(err, "flush pages on close")
	}
	for _, id := range db.Catalog.TableIDs() {
		file, err := db.Catalog.DatabaseFile(id)
		if err != nil {
			return err
		}
		if hf, ok := file.(*heapfile.HeapFile); ok {
			numPages, err := hf.NumPages()
			if err != nil {
				return err
			}
			for i := 0; i < numPages; i++ {
				db.BufferPool.DiscardPage(types.PageID{TableID: id, PageNo: uint32(i)})
			}
		}
		log.WithField("table", id).Debug("engine: closing database, table flushed")
	}
	return nil
}
