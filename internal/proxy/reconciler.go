package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wieedze/intuition-fee-proxy/internal/events"
	"github.com/Wieedze/intuition-fee-proxy/internal/fees"
	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
	"github.com/Wieedze/intuition-fee-proxy/internal/vault"
)

// Entry point operation names, used in events, the journal and metrics.
const (
	OpCreateAtoms   = "createAtoms"
	OpCreateTriples = "createTriples"
	OpDeposit       = "deposit"
	OpDepositBatch  = "depositBatch"
)

// reconcileState tracks one payment through the per-call state machine.
// States are call-scoped and never persisted.
type reconcileState int

const (
	stateReceived reconcileState = iota
	stateValidated
	stateForwarded
	stateSettled
	stateRejected
)

func (s reconcileState) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateValidated:
		return "validated"
	case stateForwarded:
		return "forwarded"
	case stateSettled:
		return "settled"
	case stateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// reconciliation is the call-scoped accounting of one entry-point
// invocation: raw payment, derived quantities and the state reached.
type reconciliation struct {
	id        string
	operation string
	payer     common.Address
	payment   *big.Int
	fee       *big.Int
	vaultCost *big.Int
	schedule  fees.Schedule
	state     reconcileState
}

func (p *Proxy) newReconciliation(operation string, payer common.Address, payment *big.Int) *reconciliation {
	if payment == nil {
		payment = new(big.Int)
	}
	return &reconciliation{
		id:        uuid.NewString(),
		operation: operation,
		payer:     payer,
		payment:   payment,
		schedule:  p.Schedule(),
		state:     stateReceived,
	}
}

// reject transitions to Rejected before any external call is made.
func (p *Proxy) reject(rec *reconciliation, err error) error {
	rec.state = stateRejected
	p.metrics.PaymentRejected(rejectionReason(err))
	p.logger.Warn("payment rejected",
		zap.String("operation", rec.operation),
		zap.String("id", rec.id),
		zap.String("payer", rec.payer.Hex()),
		zap.String("payment", rec.payment.String()),
		zap.Error(err))
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientValue):
		return "insufficient_value"
	case errors.Is(err, ErrWrongArrayLengths):
		return "wrong_array_lengths"
	default:
		return "other"
	}
}

// validate checks the payment against the computed requirement and moves
// the reconciliation to Validated.
func (p *Proxy) validate(rec *reconciliation, fee, vaultCost *big.Int) error {
	rec.fee = fee
	rec.vaultCost = vaultCost

	required := new(big.Int).Add(fee, vaultCost)
	if rec.payment.Cmp(required) < 0 {
		return p.reject(rec, ErrInsufficientValue)
	}
	rec.state = stateValidated
	return nil
}

// settle runs the two external side effects of a validated reconciliation
// in their required order, vault call first and fee transfer second, inside
// one ledger transaction. Any failure rolls the whole operation back: a
// failing vault call never collects a fee, and a failing fee transfer
// undoes the vault call.
func (p *Proxy) settle(ctx context.Context, rec *reconciliation, forward func(tx *ledger.Tx) error) error {
	tx, err := p.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reconciliation: %w", err)
	}
	defer tx.Rollback()

	// The payment enters the system: without funding the declared value
	// the call cannot proceed.
	if err := tx.Debit(rec.payer, rec.payment); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return p.reject(rec, fmt.Errorf("%w: payer cannot fund declared payment", ErrInsufficientValue))
		}
		return err
	}

	// Forward exactly the vault cost, never the full payment.
	if err := tx.Credit(p.vaultAccount, rec.vaultCost); err != nil {
		return err
	}

	rec.state = stateForwarded
	start := time.Now()
	if err := forward(tx); err != nil {
		// Vault errors propagate unchanged.
		p.metrics.ObserveVaultCall(rec.operation, time.Since(start))
		p.logger.Warn("vault call failed, rolling back",
			zap.String("operation", rec.operation),
			zap.String("id", rec.id),
			zap.Error(err))
		return err
	}
	p.metrics.ObserveVaultCall(rec.operation, time.Since(start))

	// Fee transfer to the recipient from the configuration snapshot the
	// fee was computed against.
	if err := tx.Credit(rec.schedule.Recipient, rec.fee); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	// Excess value above fee + vault cost stays in escrow.
	excess := new(big.Int).Sub(rec.payment, rec.vaultCost)
	excess.Sub(excess, rec.fee)
	if err := tx.Credit(p.escrow, excess); err != nil {
		return err
	}

	if err := tx.RecordFeeCollection(rec.id, rec.payer, rec.fee, rec.operation); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	rec.state = stateSettled
	p.metrics.FeeCollected(rec.operation)
	p.publish(events.FeesCollected{
		Payer:     rec.payer,
		Amount:    new(big.Int).Set(rec.fee),
		Operation: rec.operation,
	})
	p.logger.Info("payment settled",
		zap.String("operation", rec.operation),
		zap.String("id", rec.id),
		zap.String("payer", rec.payer.Hex()),
		zap.String("payment", rec.payment.String()),
		zap.String("fee", rec.fee.String()),
		zap.String("vault_cost", rec.vaultCost.String()))
	return nil
}

// CreateAtomsRequest carries one createAtoms payment.
type CreateAtomsRequest struct {
	Caller   common.Address
	Receiver common.Address
	Data     [][]byte
	Amounts  []*big.Int
	CurveID  *big.Int
	Payment  *big.Int
}

// CreateAtomsResult reports a settled createAtoms call.
type CreateAtomsResult struct {
	OperationID string
	TermIDs     []*big.Int
	Fee         *big.Int
	VaultCost   *big.Int
}

// CreateAtoms validates the payment against atom creation cost plus fee,
// forwards the vault-bound portion and routes the fee.
func (p *Proxy) CreateAtoms(ctx context.Context, req CreateAtomsRequest) (*CreateAtomsResult, error) {
	rec := p.newReconciliation(OpCreateAtoms, req.Caller, req.Payment)

	if len(req.Data) != len(req.Amounts) {
		return nil, p.reject(rec, ErrWrongArrayLengths)
	}

	atomCost, err := p.AtomUnitCost(ctx)
	if err != nil {
		return nil, err
	}

	total := fees.Sum(req.Amounts)
	vaultCost := new(big.Int).Mul(atomCost, big.NewInt(int64(len(req.Data))))
	vaultCost.Add(vaultCost, total)
	fee := rec.schedule.DepositFee(fees.CountPositive(req.Amounts), total)

	if err := p.validate(rec, fee, vaultCost); err != nil {
		return nil, err
	}

	var termIDs []*big.Int
	err = p.settle(ctx, rec, func(tx *ledger.Tx) error {
		termIDs, err = p.vault.CreateAtoms(tx, vault.AtomCall{
			Receiver: req.Receiver,
			Data:     req.Data,
			Amounts:  req.Amounts,
			CurveID:  req.CurveID,
			Value:    rec.vaultCost,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &CreateAtomsResult{
		OperationID: rec.id,
		TermIDs:     termIDs,
		Fee:         rec.fee,
		VaultCost:   rec.vaultCost,
	}, nil
}

// CreateTriplesRequest carries one createTriples payment. The subject,
// predicate and object slices are co-indexed.
type CreateTriplesRequest struct {
	Caller     common.Address
	Receiver   common.Address
	Subjects   []*big.Int
	Predicates []*big.Int
	Objects    []*big.Int
	Amounts    []*big.Int
	CurveID    *big.Int
	Payment    *big.Int
}

// CreateTriplesResult reports a settled createTriples call.
type CreateTriplesResult struct {
	OperationID string
	TermIDs     []*big.Int
	Fee         *big.Int
	VaultCost   *big.Int
}

// CreateTriples validates the payment against triple creation cost plus
// fee, forwards the vault-bound portion and routes the fee.
func (p *Proxy) CreateTriples(ctx context.Context, req CreateTriplesRequest) (*CreateTriplesResult, error) {
	rec := p.newReconciliation(OpCreateTriples, req.Caller, req.Payment)

	n := len(req.Subjects)
	if len(req.Predicates) != n || len(req.Objects) != n || len(req.Amounts) != n {
		return nil, p.reject(rec, ErrWrongArrayLengths)
	}

	tripleCost, err := p.TripleUnitCost(ctx)
	if err != nil {
		return nil, err
	}

	total := fees.Sum(req.Amounts)
	vaultCost := new(big.Int).Mul(tripleCost, big.NewInt(int64(n)))
	vaultCost.Add(vaultCost, total)
	fee := rec.schedule.DepositFee(fees.CountPositive(req.Amounts), total)

	if err := p.validate(rec, fee, vaultCost); err != nil {
		return nil, err
	}

	var termIDs []*big.Int
	err = p.settle(ctx, rec, func(tx *ledger.Tx) error {
		termIDs, err = p.vault.CreateTriples(tx, vault.TripleCall{
			Receiver:   req.Receiver,
			Subjects:   req.Subjects,
			Predicates: req.Predicates,
			Objects:    req.Objects,
			Amounts:    req.Amounts,
			CurveID:    req.CurveID,
			Value:      rec.vaultCost,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &CreateTriplesResult{
		OperationID: rec.id,
		TermIDs:     termIDs,
		Fee:         rec.fee,
		VaultCost:   rec.vaultCost,
	}, nil
}

// DepositRequest carries one single-term deposit. The caller states the
// total payment; the net amount is recovered by inverse fee computation.
type DepositRequest struct {
	Caller    common.Address
	Receiver  common.Address
	TermID    *big.Int
	CurveID   *big.Int
	MinShares *big.Int
	Payment   *big.Int
}

// DepositResult reports a settled deposit.
type DepositResult struct {
	OperationID string
	Amount      *big.Int // net amount forwarded to the vault
	Shares      *big.Int
	Fee         *big.Int
}

// Deposit recovers the net amount from the payment, forwards it to the
// vault and routes the fee.
func (p *Proxy) Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	rec := p.newReconciliation(OpDeposit, req.Caller, req.Payment)

	amount := rec.schedule.InverseDepositAmount(rec.payment)
	if amount.Sign() == 0 {
		return nil, p.reject(rec, ErrInsufficientValue)
	}

	fee := rec.schedule.DepositFee(1, amount)
	if err := p.validate(rec, fee, amount); err != nil {
		return nil, err
	}

	var shares *big.Int
	err := p.settle(ctx, rec, func(tx *ledger.Tx) error {
		var err error
		shares, err = p.vault.Deposit(tx, vault.DepositCall{
			Receiver:  req.Receiver,
			TermID:    req.TermID,
			CurveID:   req.CurveID,
			MinShares: req.MinShares,
			Value:     rec.vaultCost,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &DepositResult{
		OperationID: rec.id,
		Amount:      rec.vaultCost,
		Shares:      shares,
		Fee:         rec.fee,
	}, nil
}

// DepositBatchRequest carries one batch deposit. All slices are co-indexed.
type DepositBatchRequest struct {
	Caller    common.Address
	Receiver  common.Address
	TermIDs   []*big.Int
	CurveIDs  []*big.Int
	Amounts   []*big.Int
	MinShares []*big.Int
	Payment   *big.Int
}

// DepositBatchResult reports a settled batch deposit.
type DepositBatchResult struct {
	OperationID string
	Shares      []*big.Int
	Fee         *big.Int
	VaultCost   *big.Int
}

// DepositBatch validates the payment against the summed amounts plus fee,
// forwards them to the vault and routes the fee.
func (p *Proxy) DepositBatch(ctx context.Context, req DepositBatchRequest) (*DepositBatchResult, error) {
	rec := p.newReconciliation(OpDepositBatch, req.Caller, req.Payment)

	n := len(req.TermIDs)
	if len(req.CurveIDs) != n || len(req.Amounts) != n || len(req.MinShares) != n {
		return nil, p.reject(rec, ErrWrongArrayLengths)
	}

	total := fees.Sum(req.Amounts)
	fee := rec.schedule.DepositFee(fees.CountPositive(req.Amounts), total)

	if err := p.validate(rec, fee, total); err != nil {
		return nil, err
	}

	var shares []*big.Int
	err := p.settle(ctx, rec, func(tx *ledger.Tx) error {
		var err error
		shares, err = p.vault.DepositBatch(tx, vault.BatchDepositCall{
			Receiver:  req.Receiver,
			TermIDs:   req.TermIDs,
			CurveIDs:  req.CurveIDs,
			Amounts:   req.Amounts,
			MinShares: req.MinShares,
			Value:     rec.vaultCost,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &DepositBatchResult{
		OperationID: rec.id,
		Shares:      shares,
		Fee:         rec.fee,
		VaultCost:   rec.vaultCost,
	}, nil
}
