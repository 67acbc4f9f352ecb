package execution

import (
	log "github.com/sirupsen/logrus"

	"tuplestore/catalog"
	"tuplestore/dberr"
	"tuplestore/storage/heapfile"
	"tuplestore/storage/page"
	"tuplestore/transaction"
	"tuplestore/types"
)

// SeqScan reads every tuple of a table in storage order, via the table's
// HeapFile iterator, prefixing every field name with "alias.".
type SeqScan struct {
	tid     transaction.ID
	tableID types.TableID
	alias   string

	file  *heapfile.HeapFile
	store page.Store

	schema *types.TupleDesc
	it     *heapfile.FileIterator
	opened bool
	rows   int64
}

// NewSeqScan builds a scan of tableID as part of tid, aliased as alias.
// alias is used verbatim in the output schema's "alias.field" names; per the
// original contract it's fine for alias or a field name to be empty, in
// which case the output name degrades to ".field", "alias." or ".".
func NewSeqScan(store page.Store, cat *catalog.Catalog, tid transaction.ID, tableID types.TableID, alias string) (*SeqScan, error) {
	dbFile, err := cat.DatabaseFile(tableID)
	if err != nil {
		return nil, err
	}
	hf, ok := dbFile.(*heapfile.HeapFile)
	if !ok {
		return nil, dberr.Wrap(dberr.ErrIllegalState, "database file is not a heap file")
	}

	schema, err := aliasedSchema(hf.Schema(), alias)
	if err != nil {
		return nil, err
	}

	return &SeqScan{
		tid:     tid,
		tableID: tableID,
		alias:   alias,
		file:    hf,
		store:   store,
		schema:  schema,
	}, nil
}

func aliasedSchema(base *types.TupleDesc, alias string) (*types.TupleDesc, error) {
	fieldTypes := make([]types.Type, base.NumFields())
	fieldNames := make([]string, base.NumFields())
	for i := 0; i < base.NumFields(); i++ {
		ft, _ := base.FieldType(i)
		fn, _ := base.FieldName(i)
		fieldTypes[i] = ft
		fieldNames[i] = alias + "." + fn
	}
	return types.NewTupleDesc(fieldTypes, fieldNames)
}

// TableName returns the catalog's registered name for the scanned table.
func (s *SeqScan) TableName(cat *catalog.Catalog) string {
	return cat.TableName(s.tableID)
}

// Alias returns the alias this scan was constructed with.
func (s *SeqScan) Alias() string {
	return s.alias
}

func (s *SeqScan) Open() error {
	s.it = s.file.Iterator(s.store, s.tid)
	if err := s.it.Open(); err != nil {
		return err
	}
	s.opened = true
	s.rows = 0
	log.WithFields(log.Fields{"table": s.tableID, "alias": s.alias}).Debug("execution: seqscan opened")
	return nil
}

func (s *SeqScan) HasNext() (bool, error) {
	if !s.opened {
		return false, dberr.Wrap(dberr.ErrIllegalState, "seqscan: not open")
	}
	return s.it.HasNext()
}

func (s *SeqScan) Next() (*types.Tuple, error) {
	if !s.opened {
		return nil, dberr.Wrap(dberr.ErrIllegalState, "seqscan: not open")
	}
	t, err := s.it.Next()
	if err == nil {
		s.rows++
	}
	return t, err
}

func (s *SeqScan) Rewind() error {
	if !s.opened {
		return dberr.Wrap(dberr.ErrIllegalState, "seqscan: not open")
	}
	return s.it.Rewind()
}

func (s *SeqScan) Close() error {
	if s.opened {
		s.it.Close()
		s.opened = false
		if s.rows == 0 {
			log.WithFields(log.Fields{"table": s.tableID, "alias": s.alias}).Debug("execution: seqscan matched no rows")
		}
	}
	return nil
}

func (s *SeqScan) Schema() *types.TupleDesc {
	return s.schema
}
