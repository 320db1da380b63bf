// Package verify executes translated SQL candidates against the target
// PostgreSQL database. Verification runs every executable statement
// inside one transaction and always rolls it back, so the target is
// never mutated. Statements classified dangerous or procedural are
// skipped unless the policy explicitly allows them; a candidate that was
// only partially exercised this way is flagged as needing permission
// rather than passed silently.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlshift/sqlshift/internal/sqlparse"
)

// Policy controls which statement classes the verifier may execute.
type Policy struct {
	AllowDangerous  bool
	AllowProcedures bool
}

// Result reports one verification or apply run.
type Result struct {
	Success            bool
	Err                string
	SkippedStatements  []string
	ExecutedStatements int
	NeedsPermission    bool
}

// Verifier holds the target-database pool.
type Verifier struct {
	pool        *pgxpool.Pool
	policy      Policy
	stmtTimeout time.Duration
}

// Options configures the target connection.
type Options struct {
	TargetURI          string
	MaxConns           int
	StatementTimeoutMs int
	Policy             Policy
}

// New opens a pool against the target database. The statement timeout is
// enforced both server-side and through per-statement contexts.
func New(ctx context.Context, opts Options) (*Verifier, error) {
	cfg, err := pgxpool.ParseConfig(opts.TargetURI)
	if err != nil {
		return nil, fmt.Errorf("parse target uri: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.StatementTimeoutMs > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.Itoa(opts.StatementTimeoutMs)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open target pool: %w", err)
	}
	return &Verifier{
		pool:        pool,
		policy:      opts.Policy,
		stmtTimeout: time.Duration(opts.StatementTimeoutMs) * time.Millisecond,
	}, nil
}

func (v *Verifier) Close() {
	if v.pool != nil {
		v.pool.Close()
	}
}

// Verify executes the candidate inside a transaction that is always
// rolled back. Success with skipped statements sets NeedsPermission so
// the orchestrator can park the asset instead of marking it done.
func (v *Verifier) Verify(ctx context.Context, sqlScript string) Result {
	executable, skipped, err := v.prepare(sqlScript)
	if err != nil {
		return Result{Err: err.Error()}
	}
	if len(executable) == 0 {
		return Result{Success: true, SkippedStatements: skipped, NeedsPermission: len(skipped) > 0}
	}

	conn, err := v.pool.Acquire(ctx)
	if err != nil {
		return Result{Err: fmt.Sprintf("acquire target connection: %v", err), SkippedStatements: skipped}
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return Result{Err: fmt.Sprintf("begin verification transaction: %v", err), SkippedStatements: skipped}
	}
	// The transaction never commits. Rollback with a fresh context so
	// cancellation cannot leave it open.
	defer func() {
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = tx.Rollback(rbCtx)
	}()

	executed := 0
	for i, stmt := range executable {
		if err := v.execOne(ctx, tx, stmt); err != nil {
			return Result{
				Err:                fmt.Sprintf("statement #%d failed: %s", i+1, describePgError(err, stmt)),
				SkippedStatements:  skipped,
				ExecutedStatements: executed,
			}
		}
		executed++
	}

	return Result{
		Success:            true,
		SkippedStatements:  skipped,
		ExecutedStatements: executed,
		NeedsPermission:    len(skipped) > 0,
	}
}

// Apply executes the candidate and commits. The same policy filter
// applies; skipped statements are reported, never silently run.
func (v *Verifier) Apply(ctx context.Context, sqlScript string) Result {
	executable, skipped, err := v.prepare(sqlScript)
	if err != nil {
		return Result{Err: err.Error()}
	}
	if len(executable) == 0 {
		return Result{Success: true, SkippedStatements: skipped, NeedsPermission: len(skipped) > 0}
	}

	conn, err := v.pool.Acquire(ctx)
	if err != nil {
		return Result{Err: fmt.Sprintf("acquire target connection: %v", err), SkippedStatements: skipped}
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return Result{Err: fmt.Sprintf("begin apply transaction: %v", err), SkippedStatements: skipped}
	}

	executed := 0
	for i, stmt := range executable {
		if err := v.execOne(ctx, tx, stmt); err != nil {
			rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = tx.Rollback(rbCtx)
			cancel()
			return Result{
				Err:                fmt.Sprintf("statement #%d failed: %s", i+1, describePgError(err, stmt)),
				SkippedStatements:  skipped,
				ExecutedStatements: executed,
			}
		}
		executed++
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{
			Err:                fmt.Sprintf("commit apply transaction: %v", err),
			SkippedStatements:  skipped,
			ExecutedStatements: executed,
		}
	}
	return Result{
		Success:            true,
		SkippedStatements:  skipped,
		ExecutedStatements: executed,
		NeedsPermission:    len(skipped) > 0,
	}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (v *Verifier) execOne(ctx context.Context, tx execer, stmt string) error {
	if v.stmtTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.stmtTimeout)
		defer cancel()
	}
	_, err := tx.Exec(ctx, stmt)
	return err
}

// prepare splits the candidate and applies the policy filter.
func (v *Verifier) prepare(sqlScript string) (executable, skipped []string, err error) {
	stmts, err := sqlparse.Split(sqlScript)
	if err != nil {
		return nil, nil, err
	}
	for _, stmt := range stmts {
		switch stmt.Class {
		case sqlparse.Procedure:
			if !v.policy.AllowProcedures {
				skipped = append(skipped, stmt.Text)
				continue
			}
		case sqlparse.Dangerous:
			if !v.policy.AllowDangerous {
				skipped = append(skipped, stmt.Text)
				continue
			}
		}
		executable = append(executable, stmt.Text)
	}
	return executable, skipped, nil
}

// describePgError unpacks the server diagnostic when present and always
// appends the failing statement text.
func describePgError(err error, stmt string) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if pgErr.Where != "" {
			msg += " | Context: " + pgErr.Where
		}
		return msg + " | SQL: " + stmt
	}
	return err.Error() + " | SQL: " + stmt
}
