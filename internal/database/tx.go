package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Runner runs fn inside a transaction.  Calls nest: an inner WithinTx joins
// the scope already carried by ctx.
type Runner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeKey struct{}

// Scope is the per-transaction state carried through the context.  Besides
// the *sql.Tx it collects callbacks that must run once the transaction has
// finished, such as releasing a distributed lock.
type Scope struct {
	tx *sql.Tx

	mu       sync.Mutex
	done     bool
	hooks    []func(committed bool)
	rollback []func()
}

// NewScope wraps tx.  A nil tx is allowed for stores that do not use
// database/sql; they register undo steps through OnRollback instead.
func NewScope(tx *sql.Tx) *Scope { return &Scope{tx: tx} }

// Tx returns the wrapped transaction, or nil.
func (s *Scope) Tx() *sql.Tx { return s.tx }

// AfterCompletion registers fn to run after commit or rollback.  If the
// scope already finished, fn runs immediately with committed=false.
func (s *Scope) AfterCompletion(fn func(committed bool)) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		fn(false)
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// OnRollback registers an undo step.  Undo steps run in reverse order.
func (s *Scope) OnRollback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.rollback = append(s.rollback, fn)
	}
}

// Finish marks the scope complete, runs undo steps when the transaction did
// not commit, then the after-completion hooks.  Only the first call has an
// effect.
func (s *Scope) Finish(committed bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	hooks, undo := s.hooks, s.rollback
	s.hooks, s.rollback = nil, nil
	s.mu.Unlock()

	if !committed {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	for _, h := range hooks {
		h(committed)
	}
}

// WithScope returns a child context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the active scope, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// Conn returns the transaction bound to ctx, falling back to db.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if s, ok := ScopeFrom(ctx); ok && s.tx != nil {
		return s.tx
	}
	return db
}

// TxManager implements Runner on top of *sql.DB.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager bound to db.
func NewTxManager(db *sql.DB) *TxManager { return &TxManager{db: db} }

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
// Any error or panic rolls back.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ScopeFrom(ctx); ok {
		return fn(ctx)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	scope := NewScope(tx)
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
			scope.Finish(false)
		}
	}()
	if err := fn(WithScope(ctx, scope)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	scope.Finish(true)
	return nil
}
