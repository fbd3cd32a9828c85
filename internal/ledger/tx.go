package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Tx is one atomic unit of work against the ledger. All balance movements
// of a single entry-point invocation happen inside one Tx; Commit is only
// reached from a fully settled reconciliation.
type Tx struct {
	ctx  context.Context
	tx   *sql.Tx
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.tx.Rollback()
}

// Raw exposes the underlying database transaction so co-located state (the
// in-process vault) can write its rows atomically with balance movements.
func (t *Tx) Raw() *sql.Tx {
	return t.tx
}

// Context returns the context the transaction was started with.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// Balance returns addr's balance as seen by this transaction.
func (t *Tx) Balance(addr common.Address) (*big.Int, error) {
	return readBalance(t.ctx, t.tx.QueryRowContext, addr)
}

// Credit adds amount to addr's balance. A nil or zero amount is a no-op.
func (t *Tx) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	balance, err := t.Balance(addr)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return t.writeBalance(addr, balance)
}

// Debit removes amount from addr's balance, failing with
// ErrInsufficientFunds when the balance does not cover it.
func (t *Tx) Debit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	balance, err := t.Balance(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	balance.Sub(balance, amount)
	return t.writeBalance(addr, balance)
}

// Transfer moves amount from one account to another.
func (t *Tx) Transfer(from, to common.Address, amount *big.Int) error {
	if err := t.Debit(from, amount); err != nil {
		return err
	}
	return t.Credit(to, amount)
}

// RecordFeeCollection journals one settled fee inside this transaction.
func (t *Tx) RecordFeeCollection(id string, payer common.Address, amount *big.Int, operation string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO fee_collections (id, payer, amount, operation, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, payer.Hex(), amount.String(), operation, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record fee collection: %w", err)
	}
	return nil
}

func (t *Tx) writeBalance(addr common.Address, balance *big.Int) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO accounts (address, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		addr.Hex(), balance.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	return nil
}
