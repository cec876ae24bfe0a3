package sqlexec

import (
	"context"
	"sync"

	"CipherDB/internal/domain"
	"CipherDB/internal/platform/repository/btreestore"
)

// Session is one open database handle with the SQL layer on top of the
// page store. It implements domain.Database. A session owns at most one
// explicit transaction at a time; statements outside it run in their
// own implicit transaction.
type Session struct {
	store *btreestore.Database

	mu sync.Mutex
	tx *btreestore.Tx
}

func NewSession(store *btreestore.Database) *Session {
	return &Session{store: store}
}

// Store exposes the underlying page store, for maintenance operations
// like manual checkpoints.
func (s *Session) Store() *btreestore.Database {
	return s.store
}

func (s *Session) Query(ctx context.Context, sql string) (domain.Cursor, error) {
	if !s.store.IsOpen() {
		return nil, domain.ErrHandleClosed
	}
	stmt, err := parse(sql)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(selectStmt)
	if !ok {
		return nil, &domain.SchemaError{Detail: "statement returns no rows; run it as an execute"}
	}
	collate := s.store.Collator()

	s.mu.Lock()
	if s.tx != nil {
		// Inside an explicit transaction the query must see its own
		// uncommitted writes, and the pages may change after we return,
		// so the result is materialized before the lock drops.
		cursor, err := runSelect(ctx, s.tx, sel, collate, true, nil)
		s.mu.Unlock()
		return cursor, err
	}
	s.mu.Unlock()

	snap, err := s.store.BeginRead()
	if err != nil {
		return nil, err
	}
	return runSelect(ctx, snap, sel, collate, false, snap.Release)
}

func (s *Session) Exec(ctx context.Context, sql string) error {
	if !s.store.IsOpen() {
		return domain.ErrHandleClosed
	}
	stmt, err := parse(sql)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch stmt.(type) {
	case beginStmt:
		return s.beginLocked(ctx)
	case commitStmt:
		return s.commitLocked()
	case rollbackStmt:
		return s.rollbackLocked()
	case selectStmt:
		return &domain.SchemaError{Detail: "statement returns rows; run it as a query"}
	}

	if s.store.ReadOnly() {
		return domain.ErrReadOnly
	}
	if s.tx != nil {
		return s.runInTx(stmt)
	}
	return s.runImplicit(ctx, stmt)
}

// runInTx executes one statement inside the session's explicit
// transaction. OR ROLLBACK tears the whole transaction down; every
// other failure leaves it usable.
func (s *Session) runInTx(stmt statement) error {
	ex := executor{tx: s.tx, collate: s.store.Collator()}
	outcome, err := ex.run(stmt)
	if outcome == stmtRollbackTx {
		rbErr := s.tx.Rollback()
		s.tx = nil
		if rbErr != nil {
			return rbErr
		}
	}
	return err
}

// runImplicit wraps one statement in its own transaction. OR FAIL
// commits the rows changed before the conflict; everything else is all
// or nothing.
func (s *Session) runImplicit(ctx context.Context, stmt statement) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	ex := executor{tx: tx, collate: s.store.Collator()}
	outcome, err := ex.run(stmt)
	switch outcome {
	case stmtOK:
		return tx.Commit()
	case stmtFailedKeep:
		if commitErr := tx.Commit(); commitErr != nil {
			return commitErr
		}
		return err
	default:
		if rbErr := tx.Rollback(); rbErr != nil {
			return rbErr
		}
		return err
	}
}

func (s *Session) beginLocked(ctx context.Context) error {
	if s.tx != nil {
		return &domain.SchemaError{Detail: "cannot start a transaction within a transaction"}
	}
	if s.store.ReadOnly() {
		return domain.ErrReadOnly
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

func (s *Session) commitLocked() error {
	if s.tx == nil {
		return &domain.SchemaError{Detail: "no transaction is active"}
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

func (s *Session) rollbackLocked() error {
	if s.tx == nil {
		return &domain.SchemaError{Detail: "no transaction is active"}
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

func (s *Session) Version() (int64, error) {
	if !s.store.IsOpen() {
		return 0, domain.ErrHandleClosed
	}
	return s.store.UserVersion()
}

func (s *Session) SetVersion(v int64) error {
	if !s.store.IsOpen() {
		return domain.ErrHandleClosed
	}
	if s.store.ReadOnly() {
		return domain.ErrReadOnly
	}
	return s.store.SetUserVersion(context.Background(), v)
}

func (s *Session) Path() string {
	return s.store.Path()
}

func (s *Session) IsOpen() bool {
	return s.store.IsOpen()
}

func (s *Session) ReadOnly() bool {
	return s.store.ReadOnly()
}

func (s *Session) SetLocale(collationKey string) error {
	if !s.store.IsOpen() {
		return domain.ErrHandleClosed
	}
	return s.store.SetLocale(collationKey)
}

// Close rolls back any open transaction and closes the store.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	s.mu.Unlock()
	return s.store.Close()
}
