package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
)

// InProc is a ledger-backed vault: terms and share balances live in the
// ledger database so a rolled-back proxy transaction also undoes the
// vault's effects. Share pricing curves are out of scope; shares are minted
// one to one with the deposited amount on every curve.
type InProc struct {
	logger *zap.Logger
	ledger *ledger.Ledger

	// Account receives forwarded vault value on the ledger.
	account common.Address

	atomCost   *big.Int
	tripleCost *big.Int
}

// Config holds the in-process vault parameters.
type Config struct {
	Account    common.Address
	AtomCost   *big.Int
	TripleCost *big.Int
}

const schema = `
CREATE TABLE IF NOT EXISTS vault_terms (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS vault_shares (
	owner    TEXT NOT NULL,
	term_id  TEXT NOT NULL,
	curve_id TEXT NOT NULL,
	shares   TEXT NOT NULL,
	PRIMARY KEY (owner, term_id, curve_id)
);
`

// NewInProc creates the vault and migrates its tables into the ledger
// database.
func NewInProc(logger *zap.Logger, l *ledger.Ledger, cfg Config) (*InProc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AtomCost == nil || cfg.TripleCost == nil {
		return nil, errors.New("vault: atom and triple unit costs are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Migrate(ctx, schema); err != nil {
		return nil, err
	}

	return &InProc{
		logger:     logger,
		ledger:     l,
		account:    cfg.Account,
		atomCost:   new(big.Int).Set(cfg.AtomCost),
		tripleCost: new(big.Int).Set(cfg.TripleCost),
	}, nil
}

// Account returns the vault's ledger account.
func (v *InProc) Account() common.Address {
	return v.account
}

// AtomID derives the term id of an atom payload.
func AtomID(data []byte) *big.Int {
	return new(big.Int).SetBytes(crypto.Keccak256(data))
}

// TripleID derives the term id of a (subject, predicate, object) triple.
func TripleID(subject, predicate, object *big.Int) *big.Int {
	buf := make([]byte, 0, 96)
	for _, part := range []*big.Int{subject, predicate, object} {
		buf = append(buf, common.BigToHash(part).Bytes()...)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(buf))
}

func (v *InProc) CreateAtoms(tx *ledger.Tx, call AtomCall) ([]*big.Int, error) {
	if len(call.Data) != len(call.Amounts) {
		return nil, ErrWrongArrayLengths
	}

	cost := new(big.Int).Mul(v.atomCost, big.NewInt(int64(len(call.Data))))
	for _, a := range call.Amounts {
		if a != nil {
			cost.Add(cost, a)
		}
	}
	if call.Value == nil || call.Value.Cmp(cost) < 0 {
		return nil, ErrInsufficientValue
	}

	ids := make([]*big.Int, len(call.Data))
	for i, data := range call.Data {
		id := AtomID(data)
		if err := v.createTerm(tx, id, "atom"); err != nil {
			return nil, err
		}
		if _, err := v.mintShares(tx, call.Receiver, id, call.CurveID, call.Amounts[i]); err != nil {
			return nil, err
		}
		ids[i] = id
	}

	v.logger.Debug("atoms created",
		zap.Int("count", len(ids)),
		zap.String("receiver", call.Receiver.Hex()))
	return ids, nil
}

func (v *InProc) CreateTriples(tx *ledger.Tx, call TripleCall) ([]*big.Int, error) {
	n := len(call.Subjects)
	if len(call.Predicates) != n || len(call.Objects) != n || len(call.Amounts) != n {
		return nil, ErrWrongArrayLengths
	}

	cost := new(big.Int).Mul(v.tripleCost, big.NewInt(int64(n)))
	for _, a := range call.Amounts {
		if a != nil {
			cost.Add(cost, a)
		}
	}
	if call.Value == nil || call.Value.Cmp(cost) < 0 {
		return nil, ErrInsufficientValue
	}

	ids := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		for _, part := range []*big.Int{call.Subjects[i], call.Predicates[i], call.Objects[i]} {
			ok, err := termExists(tx.Context(), tx.Raw(), part)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrTermNotFound
			}
		}

		id := TripleID(call.Subjects[i], call.Predicates[i], call.Objects[i])
		if err := v.createTerm(tx, id, "triple"); err != nil {
			return nil, err
		}
		if _, err := v.mintShares(tx, call.Receiver, id, call.CurveID, call.Amounts[i]); err != nil {
			return nil, err
		}
		ids[i] = id
	}

	v.logger.Debug("triples created",
		zap.Int("count", n),
		zap.String("receiver", call.Receiver.Hex()))
	return ids, nil
}

func (v *InProc) Deposit(tx *ledger.Tx, call DepositCall) (*big.Int, error) {
	ok, err := termExists(tx.Context(), tx.Raw(), call.TermID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTermNotFound
	}

	shares, err := v.mintShares(tx, call.Receiver, call.TermID, call.CurveID, call.Value)
	if err != nil {
		return nil, err
	}
	if call.MinShares != nil && shares.Cmp(call.MinShares) < 0 {
		return nil, ErrSlippage
	}
	return shares, nil
}

func (v *InProc) DepositBatch(tx *ledger.Tx, call BatchDepositCall) ([]*big.Int, error) {
	n := len(call.TermIDs)
	if len(call.CurveIDs) != n || len(call.Amounts) != n || len(call.MinShares) != n {
		return nil, ErrWrongArrayLengths
	}

	cost := new(big.Int)
	for _, a := range call.Amounts {
		if a != nil {
			cost.Add(cost, a)
		}
	}
	if call.Value == nil || call.Value.Cmp(cost) < 0 {
		return nil, ErrInsufficientValue
	}

	shares := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		ok, err := termExists(tx.Context(), tx.Raw(), call.TermIDs[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrTermNotFound
		}

		minted, err := v.mintShares(tx, call.Receiver, call.TermIDs[i], call.CurveIDs[i], call.Amounts[i])
		if err != nil {
			return nil, err
		}
		if call.MinShares[i] != nil && minted.Cmp(call.MinShares[i]) < 0 {
			return nil, ErrSlippage
		}
		shares[i] = minted
	}
	return shares, nil
}

func (v *InProc) AtomUnitCost(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(v.atomCost), nil
}

func (v *InProc) TripleUnitCost(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(v.tripleCost), nil
}

func (v *InProc) IsTermCreated(ctx context.Context, termID *big.Int) (bool, error) {
	return termExists(ctx, v.ledger.DB(), termID)
}

func (v *InProc) SharesOf(ctx context.Context, owner common.Address, termID, curveID *big.Int) (*big.Int, error) {
	var s string
	err := v.ledger.DB().QueryRowContext(ctx, `
		SELECT shares FROM vault_shares WHERE owner = ? AND term_id = ? AND curve_id = ?`,
		owner.Hex(), termKey(termID), termKey(curveID)).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read shares: %w", err)
	}
	shares, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("vault: corrupt share balance %q", s)
	}
	return shares, nil
}

// createTerm inserts a term row, failing when the id already exists.
func (v *InProc) createTerm(tx *ledger.Tx, id *big.Int, kind string) error {
	ok, err := termExists(tx.Context(), tx.Raw(), id)
	if err != nil {
		return err
	}
	if ok {
		return ErrTermExists
	}
	_, err = tx.Raw().ExecContext(tx.Context(), `
		INSERT INTO vault_terms (id, kind, created_at) VALUES (?, ?, ?)`,
		termKey(id), kind, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("vault: failed to create term: %w", err)
	}
	return nil
}

// mintShares credits amount shares to owner in (termID, curveID) and
// returns the minted amount. Zero amounts mint nothing.
func (v *InProc) mintShares(tx *ledger.Tx, owner common.Address, termID, curveID, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int), nil
	}

	current := new(big.Int)
	var s string
	err := tx.Raw().QueryRowContext(tx.Context(), `
		SELECT shares FROM vault_shares WHERE owner = ? AND term_id = ? AND curve_id = ?`,
		owner.Hex(), termKey(termID), termKey(curveID)).Scan(&s)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("vault: failed to read shares: %w", err)
	default:
		var ok bool
		if current, ok = new(big.Int).SetString(s, 10); !ok {
			return nil, fmt.Errorf("vault: corrupt share balance %q", s)
		}
	}

	current.Add(current, amount)
	_, err = tx.Raw().ExecContext(tx.Context(), `
		INSERT INTO vault_shares (owner, term_id, curve_id, shares) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, term_id, curve_id) DO UPDATE SET shares = excluded.shares`,
		owner.Hex(), termKey(termID), termKey(curveID), current.String())
	if err != nil {
		return nil, fmt.Errorf("vault: failed to write shares: %w", err)
	}
	return new(big.Int).Set(amount), nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func termExists(ctx context.Context, q rowQuerier, termID *big.Int) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM vault_terms WHERE id = ?`, termKey(termID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vault: failed to look up term: %w", err)
	}
	return true, nil
}

func termKey(id *big.Int) string {
	if id == nil {
		return "0"
	}
	return id.String()
}
