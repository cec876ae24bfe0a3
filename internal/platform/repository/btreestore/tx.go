package btreestore

import (
	"CipherDB/internal/domain"
	"encoding/binary"
	"sort"
)

// freelistCap is how many freed page ids fit in one freelist page after
// its 8-byte next pointer and 4-byte count.
const freelistCap = (PageSize - 12) / 8

// Tx is a write transaction. All page mutations are buffered in memory
// and only reach the log at Commit; the base file is untouched until a
// checkpoint. Exactly one Tx exists per database at a time.
type Tx struct {
	db        *Database
	id        uint64
	hdr       header
	watermark uint64
	dirty     map[uint64][]byte
	freed     []uint64 // recycled into the freelist at commit
	tables    map[string]struct{}
	hdrForced bool // header changed outside page writes (SetUserVersion)
	done      bool
}

// txSavepoint captures the transaction's buffered state so a failing
// statement can be undone without losing earlier statements (ABORT mode).
type txSavepoint struct {
	hdr       header
	dirty     map[uint64][]byte
	freed     []uint64
	tables    map[string]struct{}
	hdrForced bool
}

func (tx *Tx) read(id uint64) ([]byte, error) {
	if data, ok := tx.dirty[id]; ok {
		return data, nil
	}
	if data, ok := tx.db.wal.lookup(id, tx.watermark); ok {
		return data, nil
	}
	return tx.db.pager.readPage(id)
}

func (tx *Tx) write(id uint64, data []byte) error {
	if len(data) != PageSize {
		buf := make([]byte, PageSize)
		copy(buf, data)
		data = buf
	}
	tx.dirty[id] = data
	return nil
}

// allocate hands out a page id: first from the freelist, then by growing
// the page count. Freed-in-this-tx pages are never reused before commit.
func (tx *Tx) allocate() (uint64, error) {
	if tx.hdr.freelist != 0 {
		page, err := tx.read(tx.hdr.freelist)
		if err != nil {
			return 0, err
		}
		next := binary.LittleEndian.Uint64(page[:8])
		count := binary.LittleEndian.Uint32(page[8:12])
		if count > 0 {
			id := binary.LittleEndian.Uint64(page[12+(count-1)*8:])
			updated := append([]byte(nil), page...)
			binary.LittleEndian.PutUint32(updated[8:12], count-1)
			if err := tx.write(tx.hdr.freelist, updated); err != nil {
				return 0, err
			}
			return id, nil
		}
		// Empty freelist page: the page itself is the allocation.
		id := tx.hdr.freelist
		tx.hdr.freelist = next
		return id, nil
	}
	id := tx.hdr.pageCount
	tx.hdr.pageCount++
	return id, nil
}

func (tx *Tx) free(id uint64) error {
	tx.freed = append(tx.freed, id)
	return nil
}

// applyFreed links this transaction's freed pages into the freelist.
// Runs at commit so the frees only become reusable once durably
// committed along with everything else.
func (tx *Tx) applyFreed() error {
	for _, id := range tx.freed {
		if tx.hdr.freelist == 0 {
			page := make([]byte, PageSize)
			if err := tx.write(id, page); err != nil {
				return err
			}
			tx.hdr.freelist = id
			continue
		}
		page, err := tx.read(tx.hdr.freelist)
		if err != nil {
			return err
		}
		count := binary.LittleEndian.Uint32(page[8:12])
		if count < freelistCap {
			updated := append([]byte(nil), page...)
			binary.LittleEndian.PutUint64(updated[12+count*8:], id)
			binary.LittleEndian.PutUint32(updated[8:12], count+1)
			if err := tx.write(tx.hdr.freelist, updated); err != nil {
				return err
			}
			continue
		}
		// Head is full: the freed page becomes the new, empty head.
		fresh := make([]byte, PageSize)
		binary.LittleEndian.PutUint64(fresh[:8], tx.hdr.freelist)
		if err := tx.write(id, fresh); err != nil {
			return err
		}
		tx.hdr.freelist = id
	}
	tx.freed = nil
	return nil
}

// Savepoint snapshots the buffered state before a statement runs.
func (tx *Tx) Savepoint() txSavepoint {
	dirty := make(map[uint64][]byte, len(tx.dirty))
	for id, data := range tx.dirty {
		dirty[id] = data
	}
	tables := make(map[string]struct{}, len(tx.tables))
	for t := range tx.tables {
		tables[t] = struct{}{}
	}
	return txSavepoint{
		hdr:       tx.hdr,
		dirty:     dirty,
		freed:     append([]uint64(nil), tx.freed...),
		tables:    tables,
		hdrForced: tx.hdrForced,
	}
}

// RollbackTo undoes everything since the savepoint was taken.
func (tx *Tx) RollbackTo(sp txSavepoint) {
	tx.hdr = sp.hdr
	tx.dirty = sp.dirty
	tx.freed = sp.freed
	tx.tables = sp.tables
	tx.hdrForced = sp.hdrForced
}

// Commit appends every dirty page plus the updated header to the log,
// fsyncs, publishes the frames and releases the writer lock.
func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.db.releaseWriter()

	if len(tx.dirty) == 0 && len(tx.freed) == 0 && !tx.hdrForced {
		return nil
	}
	if err := tx.applyFreed(); err != nil {
		return err
	}
	tx.hdr.lastTxID = tx.id

	frames := make(map[uint64][]byte, len(tx.dirty)+1)
	for id, data := range tx.dirty {
		frames[id] = data
	}
	frames[0] = tx.hdr.encode()
	if err := tx.db.wal.appendTx(tx.id, frames); err != nil {
		return err
	}
	tx.db.setCommittedHeader(tx.hdr)
	tx.db.notifyCommit(tx.id, tx.touchedTables(), len(frames))
	tx.db.maybeCheckpoint()
	return nil
}

// Rollback discards the buffered state. Nothing of the transaction is
// ever observable afterwards.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.dirty = nil
	tx.freed = nil
	tx.db.releaseWriter()
	return nil
}

func (tx *Tx) touchedTables() []string {
	out := make([]string, 0, len(tx.tables))
	for t := range tx.tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Table opens a write handle onto one table of this transaction.
func (tx *Tx) Table(name string) (*Table, error) {
	schema, _, ok, err := findTable(tx, tx.hdr.catalogRoot, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.SchemaError{Table: name, Detail: "no such table"}
	}
	tx.tables[name] = struct{}{}
	return &Table{schema: schema, tree: openBTree(tx, schema.RootPage)}, nil
}

// Tables lists the schemas visible to this transaction.
func (tx *Tx) Tables() ([]domain.TableSchema, error) {
	tables, _, err := loadTables(tx, tx.hdr.catalogRoot)
	return tables, err
}

// Schema returns one table's schema without marking it touched.
func (tx *Tx) Schema(name string) (domain.TableSchema, bool, error) {
	schema, _, ok, err := findTable(tx, tx.hdr.catalogRoot, name)
	return schema, ok, err
}

// CreateTable registers a new table. Names are unique per database.
func (tx *Tx) CreateTable(schema domain.TableSchema) error {
	_, _, exists, err := findTable(tx, tx.hdr.catalogRoot, schema.Name)
	if err != nil {
		return err
	}
	if exists {
		return &domain.SchemaError{Table: schema.Name, Detail: "table already exists"}
	}
	if _, err := createTable(tx, tx.hdr.catalogRoot, schema); err != nil {
		return err
	}
	tx.tables[schema.Name] = struct{}{}
	return nil
}

// DropTable removes a table and frees its pages.
func (tx *Tx) DropTable(name string) error {
	ok, err := dropTable(tx, tx.hdr.catalogRoot, name)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.SchemaError{Table: name, Detail: "no such table"}
	}
	tx.tables[name] = struct{}{}
	return nil
}

// SetUserVersion stages a new schema version number.
func (tx *Tx) SetUserVersion(v int64) {
	tx.hdr.userVersion = v
	tx.hdrForced = true
}

// Snapshot is a read-only view pinned at the watermark where it was
// opened: later commits stay invisible (snapshot isolation). It holds no
// locks, only a reader epoch that delays checkpoints.
type Snapshot struct {
	db        *Database
	readerID  uint64
	watermark uint64
	catalog   uint64
	released  bool
}

func (s *Snapshot) read(id uint64) ([]byte, error) {
	if data, ok := s.db.wal.lookup(id, s.watermark); ok {
		return data, nil
	}
	return s.db.pager.readPage(id)
}

func (s *Snapshot) write(uint64, []byte) error { return domain.ErrReadOnly }
func (s *Snapshot) allocate() (uint64, error)  { return 0, domain.ErrReadOnly }
func (s *Snapshot) free(uint64) error          { return domain.ErrReadOnly }

// Table opens a read handle onto one table at this snapshot.
func (s *Snapshot) Table(name string) (*Table, error) {
	schema, _, ok, err := findTable(s, s.catalog, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.SchemaError{Table: name, Detail: "no such table"}
	}
	return &Table{schema: schema, tree: openBTree(s, schema.RootPage)}, nil
}

func (s *Snapshot) Tables() ([]domain.TableSchema, error) {
	tables, _, err := loadTables(s, s.catalog)
	return tables, err
}

func (s *Snapshot) Schema(name string) (domain.TableSchema, bool, error) {
	schema, _, ok, err := findTable(s, s.catalog, name)
	return schema, ok, err
}

// Release drops the reader epoch, letting checkpoints proceed. Safe to
// call more than once.
func (s *Snapshot) Release() {
	if s.released {
		return
	}
	s.released = true
	s.db.wal.releaseReader(s.readerID)
}

// Table is schema plus tree, bound to one transaction or snapshot.
type Table struct {
	schema domain.TableSchema
	tree   *btree
}

func (t *Table) Schema() domain.TableSchema {
	return t.schema
}

// Insert stores a row under its row id. existed reports a key collision;
// with replace false the store is untouched in that case.
func (t *Table) Insert(rowID int64, values []domain.Value, replace bool) (existed bool, err error) {
	return t.tree.insert(rowID, encodeRow(values), replace)
}

func (t *Table) Delete(rowID int64) (bool, error) {
	return t.tree.delete(rowID)
}

func (t *Table) Lookup(rowID int64) (domain.Row, bool, error) {
	payload, ok, err := t.tree.lookup(rowID)
	if err != nil || !ok {
		return domain.Row{}, false, err
	}
	values, err := decodeRow(payload)
	if err != nil {
		return domain.Row{}, false, &domain.CorruptPageError{PageID: t.schema.RootPage, Detail: err.Error()}
	}
	return domain.Row{RowID: rowID, Values: values}, true, nil
}

// MaxRowID reports the highest row id in use, for auto-assignment.
func (t *Table) MaxRowID() (int64, bool, error) {
	return t.tree.maxKey()
}

// Scan iterates all rows in ascending row id order.
func (t *Table) Scan() (*RowIterator, error) {
	return t.SeekGE(minInt64)
}

// SeekGE iterates rows with row id >= start, ascending.
func (t *Table) SeekGE(start int64) (*RowIterator, error) {
	it, err := t.tree.seek(start)
	if err != nil {
		return nil, err
	}
	return &RowIterator{it: it, root: t.schema.RootPage}, nil
}

// RowIterator yields decoded rows from a tree walk.
type RowIterator struct {
	it   *treeIterator
	root uint64
}

func (r *RowIterator) Next() (domain.Row, bool, error) {
	key, payload, ok, err := r.it.next()
	if err != nil || !ok {
		return domain.Row{}, false, err
	}
	values, err := decodeRow(payload)
	if err != nil {
		return domain.Row{}, false, &domain.CorruptPageError{PageID: r.root, Detail: err.Error()}
	}
	return domain.Row{RowID: key, Values: values}, true, nil
}
