// Package catalog is the name/id/file-handle directory of tables the buffer
// pool consults to resolve a page identifier to its backing file.
package catalog

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"tuplestore/dberr"
	"tuplestore/storage/page"
	"tuplestore/types"
)

// DBFile is the narrow interface a table's backing storage must satisfy to
// be registered with the Catalog. storage/heapfile.HeapFile implements this
// structurally; the catalog package never imports heapfile, which keeps the
// dependency graph acyclic (bufferpool depends on catalog and reaches heap
// files only through interfaces, and heapfile and catalog don't depend on
// each other).
type DBFile interface {
	ID() types.TableID
	Schema() *types.TupleDesc
	ReadPage(pid types.PageID) (*page.HeapPage, error)
	WritePage(p *page.HeapPage) error
}

type tableEntry struct {
	file      DBFile
	name      string
	pkeyField string
}

// Catalog maps table id and table name to a table's backing file. It is not
// expected to be mutated concurrently with query execution, but AddTable and
// the lookups take a mutex regardless since setup code sometimes runs on a
// different goroutine than execution.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[types.TableID]*tableEntry
	byName map[string]types.TableID
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		byID:   make(map[types.TableID]*tableEntry),
		byName: make(map[string]types.TableID),
	}
}

// AddTable registers file under name with the given primary key field name
// (may be empty). Any existing entry sharing the same name or the same file
// id is replaced.
func (c *Catalog) AddTable(file DBFile, name, pkeyField string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existingID, ok := c.byName[name]; ok {
		delete(c.byID, existingID)
	}
	if e, ok := c.byID[file.ID()]; ok {
		delete(c.byName, e.name)
	}

	e := &tableEntry{file: file, name: name, pkeyField: pkeyField}
	c.byID[file.ID()] = e
	c.byName[name] = file.ID()
	log.WithFields(log.Fields{"table": name, "id": file.ID()}).Debug("catalog: added table")
}

// TableID returns the id of the table registered under name.
func (c *Catalog) TableID(name string) (types.TableID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	if !ok {
		return 0, dberr.Wrapf(dberr.ErrNoSuchTable, "table %q not found", name)
	}
	return id, nil
}

// Schema returns the schema of the table with the given id.
func (c *Catalog) Schema(id types.TableID) (*types.TupleDesc, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.file.Schema(), nil
}

// DatabaseFile returns the DBFile backing the table with the given id.
func (c *Catalog) DatabaseFile(id types.TableID) (DBFile, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.file, nil
}

// PrimaryKey returns the primary key field name for the table with the
// given id, or "" if none was set or the table doesn't exist.
func (c *Catalog) PrimaryKey(id types.TableID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return ""
	}
	return e.pkeyField
}

func (c *Catalog) lookup(id types.TableID) (*tableEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, dberr.Wrapf(dberr.ErrNoSuchTable, "table id %d not found", id)
	}
	return e, nil
}

// TableName returns the name registered for id, or "" if unknown.
func (c *Catalog) TableName(id types.TableID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return ""
	}
	return e.name
}

// TableIDs returns a snapshot of every registered table id.
func (c *Catalog) TableIDs() []types.TableID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]types.TableID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	return ids
}

// Clear removes every registered table.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[types.TableID]*tableEntry)
	c.byName = make(map[string]types.TableID)
}

// OpenFileFunc constructs a DBFile for a table given its data file path and
// schema. LoadSchema takes this as a parameter instead of importing
// storage/heapfile directly, keeping catalog decoupled from any one storage
// backend.
type OpenFileFunc func(path string, desc *types.TupleDesc) (DBFile, error)

// LoadSchema parses the catalog text format (one table per line, written
// `name (field type [pk], ...)` with type "int" or "string" in any case) and
// registers one table per line. Data files are resolved as
// <dir(catalogFile)>/<tablename>.dat.
func LoadSchema(c *Catalog, catalogFile string, open OpenFileFunc) error {
	baseDir := filepath.Dir(catalogFile)
	f, err := os.Open(catalogFile)
	if err != nil {
		return dberr.Wrapf(dberr.ErrIO, "open catalog file %s", catalogFile)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := loadSchemaLine(c, baseDir, line, open); err != nil {
			return dberr.Wrapf(err, "parse catalog line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return dberr.Wrapf(dberr.ErrIO, "read catalog file %s", catalogFile)
	}
	return nil
}

func loadSchemaLine(c *Catalog, baseDir, line string, open OpenFileFunc) error {
	open1 := strings.Index(line, "(")
	close1 := strings.LastIndex(line, ")")
	if open1 < 0 || close1 < open1 {
		return dberr.Wrap(dberr.ErrSchemaMismatch, "malformed catalog line, expected 'name (field type, ...)'")
	}
	name := strings.TrimSpace(line[:open1])
	fieldsPart := line[open1+1 : close1]

	fieldSpecs := strings.Split(fieldsPart, ",")
	fieldTypes := make([]types.Type, 0, len(fieldSpecs))
	fieldNames := make([]string, 0, len(fieldSpecs))
	pkeyField := ""

	for _, spec := range fieldSpecs {
		tokens := strings.Fields(strings.TrimSpace(spec))
		if len(tokens) < 2 {
			return dberr.Wrapf(dberr.ErrSchemaMismatch, "malformed field spec %q", spec)
		}
		fieldName := tokens[0]
		fieldType, err := types.ParseType(tokens[1])
		if err != nil {
			return err
		}
		if len(tokens) == 3 {
			if tokens[2] != "pk" {
				return dberr.Wrapf(dberr.ErrSchemaMismatch, "unknown annotation %q", tokens[2])
			}
			pkeyField = fieldName
		}
		fieldNames = append(fieldNames, fieldName)
		fieldTypes = append(fieldTypes, fieldType)
	}

	desc, err := types.NewTupleDesc(fieldTypes, fieldNames)
	if err != nil {
		return err
	}

	dataPath := filepath.Join(baseDir, name+".dat")
	file, err := open(dataPath, desc)
	if err != nil {
		return err
	}
	c.AddTable(file, name, pkeyField)
	return nil
}
