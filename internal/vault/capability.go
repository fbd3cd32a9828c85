package vault

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
)

// Capability is the proxy's view of the external vault: the four
// value-accepting operations plus the read-only queries. Mutating calls take
// the active ledger transaction so the vault's effects commit or roll back
// together with the proxy's balance movements. Errors returned here
// propagate through the proxy unwrapped.
type Capability interface {
	// CreateAtoms creates one atom per data payload and deposits the
	// co-indexed amounts. Returns the new term ids.
	CreateAtoms(tx *ledger.Tx, call AtomCall) ([]*big.Int, error)

	// CreateTriples creates one triple per (subject, predicate, object)
	// row and deposits the co-indexed amounts. Returns the new term ids.
	CreateTriples(tx *ledger.Tx, call TripleCall) ([]*big.Int, error)

	// Deposit deposits the call value into an existing term. Returns the
	// shares minted.
	Deposit(tx *ledger.Tx, call DepositCall) (*big.Int, error)

	// DepositBatch deposits into several existing terms at once. Returns
	// the shares minted per entry.
	DepositBatch(tx *ledger.Tx, call BatchDepositCall) ([]*big.Int, error)

	// AtomUnitCost returns the vault's flat cost of creating one atom.
	AtomUnitCost(ctx context.Context) (*big.Int, error)

	// TripleUnitCost returns the vault's flat cost of creating one triple.
	TripleUnitCost(ctx context.Context) (*big.Int, error)

	// IsTermCreated reports whether a term id exists.
	IsTermCreated(ctx context.Context, termID *big.Int) (bool, error)

	// SharesOf returns owner's share balance in (termID, curveID).
	SharesOf(ctx context.Context, owner common.Address, termID, curveID *big.Int) (*big.Int, error)
}

// AtomCall carries the parameters of a createAtoms invocation.
type AtomCall struct {
	Receiver common.Address
	Data     [][]byte
	Amounts  []*big.Int
	CurveID  *big.Int

	// Value is the native value forwarded with the call. The proxy always
	// forwards exactly the vault cost, never the caller's full payment.
	Value *big.Int
}

// TripleCall carries the parameters of a createTriples invocation. The
// subject, predicate and object slices are co-indexed existing term ids.
type TripleCall struct {
	Receiver   common.Address
	Subjects   []*big.Int
	Predicates []*big.Int
	Objects    []*big.Int
	Amounts    []*big.Int
	CurveID    *big.Int
	Value      *big.Int
}

// DepositCall carries the parameters of a single deposit.
type DepositCall struct {
	Receiver  common.Address
	TermID    *big.Int
	CurveID   *big.Int
	MinShares *big.Int
	Value     *big.Int
}

// BatchDepositCall carries the parameters of a batch deposit. All slices
// are co-indexed.
type BatchDepositCall struct {
	Receiver  common.Address
	TermIDs   []*big.Int
	CurveIDs  []*big.Int
	Amounts   []*big.Int
	MinShares []*big.Int
	Value     *big.Int
}

var (
	// ErrInsufficientValue indicates a forwarded value below the vault's
	// own cost for the call.
	ErrInsufficientValue = errors.New("vault: insufficient value")

	// ErrTermExists indicates an attempt to create an already existing term.
	ErrTermExists = errors.New("vault: term already exists")

	// ErrTermNotFound indicates a deposit into, or a triple referencing, a
	// term that was never created.
	ErrTermNotFound = errors.New("vault: term not found")

	// ErrSlippage indicates minted shares below the caller's MinShares bound.
	ErrSlippage = errors.New("vault: minted shares below minimum")

	// ErrWrongArrayLengths indicates co-indexed slices of mismatched length.
	ErrWrongArrayLengths = errors.New("vault: co-indexed arrays have different lengths")
)
