package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// The ledger is the proxy's stand-in for the chain's native-currency
// balances: a SQLite double-entry store keyed by address. Every entry-point
// invocation runs inside one ledger transaction, which is what gives the
// reconciler its all-or-nothing guarantee: a failing fee transfer rolls the
// vault call back too.

var (
	// ErrInsufficientFunds indicates a transfer exceeding the source balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrNegativeAmount indicates a negative transfer or credit amount.
	ErrNegativeAmount = errors.New("ledger: negative amount")
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address    TEXT PRIMARY KEY,
	balance    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS fee_collections (
	id         TEXT PRIMARY KEY,
	payer      TEXT NOT NULL,
	amount     TEXT NOT NULL,
	operation  TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fee_collections_payer ON fee_collections(payer);
`

// Config holds ledger database settings.
type Config struct {
	Path string `yaml:"path"`
}

// Ledger is a SQLite-backed account balance store.
type Ledger struct {
	logger *zap.Logger
	db     *sql.DB
}

// Open opens (or creates) the ledger database at path and migrates the
// schema. Use ":memory:" for an ephemeral ledger in tests.
func Open(logger *zap.Logger, cfg Config) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	// Serialized access: the reconciler relies on transactions executing
	// one at a time, the way the original substrate serializes calls.
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_journal_mode=WAL&_fk=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}

	logger.Info("ledger opened", zap.String("path", path))
	return &Ledger{logger: logger, db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Migrate applies an additional schema fragment. Components that persist
// state alongside the ledger (the in-process vault) register their tables
// through this so their writes join ledger transactions.
func (l *Ledger) Migrate(ctx context.Context, stmts string) error {
	if _, err := l.db.ExecContext(ctx, stmts); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for components that persist their own
// state in the ledger database (see Migrate).
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// Begin starts a ledger transaction.
func (l *Ledger) Begin(ctx context.Context) (*Tx, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	return &Tx{ctx: ctx, tx: tx}, nil
}

// Balance returns the current balance of addr outside any transaction.
// Unknown accounts have a zero balance.
func (l *Ledger) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return readBalance(ctx, l.db.QueryRowContext, addr)
}

// Mint credits addr with amount outside the reconciliation path. This is
// the funding entry for payer accounts (the analogue of value arriving from
// outside the system).
func (l *Ledger) Mint(ctx context.Context, addr common.Address, amount *big.Int) error {
	tx, err := l.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.Credit(addr, amount); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// FeeCollection is one settled fee journal row.
type FeeCollection struct {
	ID        string
	Payer     common.Address
	Amount    *big.Int
	Operation string
	CreatedAt time.Time
}

// FeeCollections returns the most recent settled fee rows, newest first.
func (l *Ledger) FeeCollections(ctx context.Context, limit int) ([]FeeCollection, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, payer, amount, operation, created_at
		FROM fee_collections
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee collections: %w", err)
	}
	defer rows.Close()

	out := make([]FeeCollection, 0, limit)
	for rows.Next() {
		var fc FeeCollection
		var payer, amount string
		if err := rows.Scan(&fc.ID, &payer, &amount, &fc.Operation, &fc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee collection: %w", err)
		}
		fc.Payer = common.HexToAddress(payer)
		fc.Amount, err = parseAmount(amount)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt ledger amount %q", s)
	}
	return v, nil
}

type rowQuerier func(ctx context.Context, query string, args ...any) *sql.Row

func readBalance(ctx context.Context, queryRow rowQuerier, addr common.Address) (*big.Int, error) {
	var s string
	err := queryRow(ctx, `SELECT balance FROM accounts WHERE address = ?`, addr.Hex()).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return parseAmount(s)
}
