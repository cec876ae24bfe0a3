package btreestore

import (
	"CipherDB/internal/domain"
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultCheckpointThreshold is the WAL size past which a commit tries to
// fold the log into the main file.
const DefaultCheckpointThreshold = 4 << 20

// Options tune one database handle. Zero values mean: unbounded writer
// lock wait, default checkpoint threshold, built-in collators only, no
// commit notifications.
type Options struct {
	LockTimeout         time.Duration
	CheckpointThreshold int64
	Collators           *domain.CollatorRegistry
	Notifier            domain.CommitNotifier
}

// Database is one open store: pager plus log plus the single-writer lock.
// Readers take snapshots and proceed concurrently; writers serialize.
type Database struct {
	path  string
	flags domain.OpenFlags
	pager *pager
	wal   *wal

	writerCh            chan struct{}
	lockTimeout         time.Duration
	checkpointThreshold int64
	notifier            domain.CommitNotifier
	collators           *domain.CollatorRegistry

	mu           sync.RWMutex
	hdr          header // last committed
	collator     domain.Collator
	collationKey string
	open         bool
}

// WALPath returns the sibling log file for a database path.
func WALPath(path string) string {
	return path + "-wal"
}

// Open opens or creates the store described by req. An empty path builds
// an ephemeral in-memory store. A wrong passphrase fails here with
// AuthFailure before any page is served.
func Open(req domain.OpenRequest, opts Options) (*Database, error) {
	if opts.CheckpointThreshold == 0 {
		opts.CheckpointThreshold = DefaultCheckpointThreshold
	}
	if opts.Collators == nil {
		opts.Collators = domain.NewCollatorRegistry()
	}

	db := &Database{
		path:                req.Path,
		flags:               req.Flags,
		writerCh:            make(chan struct{}, 1),
		lockTimeout:         opts.LockTimeout,
		checkpointThreshold: opts.CheckpointThreshold,
		notifier:            opts.Notifier,
		collators:           opts.Collators,
	}

	if req.Path == "" {
		if err := db.createMemory(req.Passphrase); err != nil {
			return nil, err
		}
		db.open = true
		return db, nil
	}

	_, statErr := os.Stat(req.Path)
	switch {
	case os.IsNotExist(statErr):
		if !req.Flags.Create() || req.Flags.ReadOnly() {
			return nil, domain.WrapIO("open database", statErr)
		}
		if err := db.createFile(req.Path, req.Passphrase); err != nil {
			return nil, err
		}
	case statErr != nil:
		return nil, domain.WrapIO("stat database", statErr)
	default:
		if err := db.openExisting(req.Path, req.Passphrase, req.Flags.ReadOnly()); err != nil {
			return nil, err
		}
	}
	db.open = true
	return db, nil
}

func newCodec(passphrase string, salt []byte) (pageCodec, []byte, error) {
	if passphrase == "" {
		return crcCodec{}, nil, nil
	}
	aead, err := newAEADCodec(passphrase, salt)
	if err != nil {
		return nil, nil, err
	}
	check, err := aead.sealKeyCheck()
	if err != nil {
		return nil, nil, err
	}
	return aead, check, nil
}

func newHeader(passphrase string, salt, keyCheck []byte) header {
	h := header{
		salt:      salt,
		kdfRounds: kdfRounds,
		pageCount: 1,
		keyCheck:  keyCheck,
	}
	if passphrase != "" {
		h.flags |= flagEncrypted
	}
	return h
}

func (db *Database) createMemory(passphrase string) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	codec, keyCheck, err := newCodec(passphrase, salt)
	if err != nil {
		return err
	}
	db.pager = newMemoryPager(codec)
	db.wal = newMemoryWAL()
	db.hdr = newHeader(passphrase, salt, keyCheck)
	if err := db.pager.writeHeader(db.hdr); err != nil {
		return err
	}
	return db.bootstrapCatalog()
}

func (db *Database) createFile(path, passphrase string) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	codec, keyCheck, err := newCodec(passphrase, salt)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return domain.WrapIO("create database file", err)
	}
	hdr := newHeader(passphrase, salt, keyCheck)
	if _, err := f.WriteAt(hdr.encode(), 0); err != nil {
		f.Close()
		os.Remove(path)
		return wrapWrite("write header", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return domain.WrapIO("sync database file", err)
	}
	f.Close()

	db.pager, err = newFilePager(path, codec, false)
	if err != nil {
		return err
	}
	db.hdr = hdr
	db.wal, err = openWAL(WALPath(path), codec, false)
	if err != nil {
		db.pager.close()
		return err
	}
	return db.bootstrapCatalog()
}

// bootstrapCatalog creates the catalog tree in a first transaction.
func (db *Database) bootstrapCatalog() error {
	tx := db.newTx()
	root, err := createBTree(tx)
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.hdr.catalogRoot = root
	tx.hdrForced = true
	return tx.Commit()
}

func (db *Database) openExisting(path, passphrase string, readOnly bool) error {
	p, err := newFilePager(path, crcCodec{}, readOnly)
	if err != nil {
		return err
	}
	hdr, err := p.readHeader()
	if err != nil {
		p.close()
		return err
	}
	if hdr.encrypted() != (passphrase != "") {
		p.close()
		return domain.ErrAuthFailure
	}
	var codec pageCodec = crcCodec{}
	if hdr.encrypted() {
		aead, err := newAEADCodec(passphrase, hdr.salt)
		if err != nil {
			p.close()
			return err
		}
		if err := aead.verifyKeyCheck(hdr.keyCheck); err != nil {
			p.close()
			return err
		}
		p.setCodec(aead)
		codec = aead
	}

	w, err := openWAL(WALPath(path), codec, readOnly)
	if err != nil {
		p.close()
		return err
	}
	db.pager = p
	db.wal = w

	// Crash recovery left committed frames in the log; the newest header
	// image wins over the base file's.
	if img, ok := w.lookup(0, w.watermark()); ok {
		recovered, err := decodeHeader(img)
		if err != nil {
			p.close()
			w.close()
			return err
		}
		hdr = recovered
	}
	db.hdr = hdr

	if !readOnly {
		if err := w.checkpoint(p); err != nil {
			log.Println("checkpoint after recovery failed:", err)
		}
	}
	return nil
}

// Delete removes a database's main file and its WAL sibling. Idempotent:
// reports false when neither existed.
func Delete(path string) (bool, error) {
	existed := false
	for _, p := range []string{path, WALPath(path)} {
		err := os.Remove(p)
		switch {
		case err == nil:
			existed = true
		case os.IsNotExist(err):
		default:
			return existed, domain.WrapIO("delete database", err)
		}
	}
	return existed, nil
}

func (db *Database) Path() string {
	return db.path
}

func (db *Database) ReadOnly() bool {
	return db.flags.ReadOnly()
}

func (db *Database) Flags() domain.OpenFlags {
	return db.flags
}

func (db *Database) IsOpen() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.open
}

func (db *Database) committedHeader() header {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.hdr
}

func (db *Database) setCommittedHeader(h header) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hdr = h
}

// Collator returns the comparator chosen by SetLocale, nil for bytewise.
func (db *Database) Collator() domain.Collator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.collator
}

// SetLocale selects the registered comparator for a collation key. On a
// read-only handle, or when localized collators are disabled by flag,
// this is a no-op.
func (db *Database) SetLocale(collationKey string) error {
	if db.flags.ReadOnly() || !db.flags.LocalizedCollators() {
		return nil
	}
	c, ok := db.collators.Lookup(collationKey)
	if !ok {
		return fmt.Errorf("unknown collation %q", collationKey)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collator = c
	db.collationKey = collationKey
	return nil
}

// UserVersion reads the schema version last committed.
func (db *Database) UserVersion() (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if !db.open {
		return 0, domain.ErrHandleClosed
	}
	return db.hdr.userVersion, nil
}

// SetUserVersion durably stores a new schema version.
func (db *Database) SetUserVersion(ctx context.Context, v int64) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	tx.SetUserVersion(v)
	return tx.Commit()
}

func (db *Database) newTx() *Tx {
	hdr := db.committedHeader()
	return &Tx{
		db:        db,
		id:        hdr.lastTxID + 1,
		hdr:       hdr,
		watermark: db.wal.watermark(),
		dirty:     make(map[uint64][]byte),
		tables:    make(map[string]struct{}),
	}
}

// Begin acquires the writer lock and starts a transaction. The wait is
// bounded by the configured lock timeout (unbounded by default) and by
// ctx; expiry surfaces as LockTimeout.
func (db *Database) Begin(ctx context.Context) (*Tx, error) {
	if !db.IsOpen() {
		return nil, domain.ErrHandleClosed
	}
	if db.flags.ReadOnly() {
		return nil, domain.ErrReadOnly
	}
	if db.lockTimeout > 0 {
		timer := time.NewTimer(db.lockTimeout)
		defer timer.Stop()
		select {
		case db.writerCh <- struct{}{}:
		case <-timer.C:
			return nil, domain.ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case db.writerCh <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !db.IsOpen() {
		db.releaseWriter()
		return nil, domain.ErrHandleClosed
	}
	return db.newTx(), nil
}

func (db *Database) releaseWriter() {
	select {
	case <-db.writerCh:
	default:
	}
}

// BeginRead pins a snapshot of the last committed state. It never blocks
// on the writer.
func (db *Database) BeginRead() (*Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if !db.open {
		return nil, domain.ErrHandleClosed
	}
	readerID, watermark := db.wal.registerReader()
	return &Snapshot{
		db:        db,
		readerID:  readerID,
		watermark: watermark,
		catalog:   db.hdr.catalogRoot,
	}, nil
}

// maybeCheckpoint folds the log into the base file when it grew past the
// threshold, or after every commit when write-ahead logging was not
// requested. It silently yields to active reader epochs.
func (db *Database) maybeCheckpoint() {
	if db.flags.ReadOnly() {
		return
	}
	if db.flags.WALEnabled() && db.wal.size() < db.checkpointThreshold {
		return
	}
	if err := db.wal.checkpoint(db.pager); err != nil {
		log.Println("checkpoint failed:", err)
	}
}

// Checkpoint forces a fold of the log into the base file. It is a no-op
// while reader epochs are active.
func (db *Database) Checkpoint() error {
	if db.flags.ReadOnly() {
		return domain.ErrReadOnly
	}
	return db.wal.checkpoint(db.pager)
}

// Close checkpoints if possible and releases the files. Open cursors and
// transactions become invalid.
func (db *Database) Close() error {
	db.mu.Lock()
	if !db.open {
		db.mu.Unlock()
		return nil
	}
	db.open = false
	db.mu.Unlock()

	// Take the writer lock so no transaction is mid-commit.
	db.writerCh <- struct{}{}
	defer db.releaseWriter()

	var first error
	if !db.flags.ReadOnly() {
		if err := db.wal.checkpoint(db.pager); err != nil {
			first = err
		}
	}
	if err := db.wal.close(); err != nil && first == nil {
		first = err
	}
	if err := db.pager.close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (db *Database) notifyCommit(txID uint64, tables []string, frames int) {
	if db.notifier == nil {
		return
	}
	db.notifier.NotifyCommit(domain.CommitEvent{
		Database:  db.path,
		TxID:      txID,
		Tables:    tables,
		Frames:    frames,
		Timestamp: time.Now().UnixNano(),
	})
}
