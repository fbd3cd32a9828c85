package proxy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wieedze/intuition-fee-proxy/internal/events"
	"github.com/Wieedze/intuition-fee-proxy/internal/vault"
)

func (f *fixture) balance(t *testing.T, addr common.Address) string {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b.String()
}

func (f *fixture) fund(t *testing.T, addr common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(context.Background(), addr, big.NewInt(amount)))
}

// createAtom creates a single zero-deposit atom and returns its term id.
func (f *fixture) createAtom(t *testing.T, data string) *big.Int {
	t.Helper()
	f.fund(t, payerAddr, 100) // atom cost only, zero amounts carry no fee
	res, err := f.proxy.CreateAtoms(context.Background(), CreateAtomsRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		Data:     [][]byte{[]byte(data)},
		Amounts:  []*big.Int{nil},
		CurveID:  big.NewInt(1),
		Payment:  big.NewInt(100),
	})
	require.NoError(t, err)
	return res.TermIDs[0]
}

func TestCreateAtomsSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	// vaultCost = 2 atoms * 100 + 1000 deposit; fee = 100*1 + 5% of 1000.
	f.fund(t, payerAddr, 1350)

	res, err := f.proxy.CreateAtoms(ctx, CreateAtomsRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		Data:     [][]byte{[]byte("alpha"), []byte("beta")},
		Amounts:  []*big.Int{big.NewInt(1000), big.NewInt(0)},
		CurveID:  big.NewInt(1),
		Payment:  big.NewInt(1350),
	})
	require.NoError(t, err)
	require.Len(t, res.TermIDs, 2)
	assert.Equal(t, "150", res.Fee.String())
	assert.Equal(t, "1200", res.VaultCost.String())
	assert.NotEmpty(t, res.OperationID)

	assert.Equal(t, "0", f.balance(t, payerAddr))
	assert.Equal(t, "1200", f.balance(t, vaultAccount))
	assert.Equal(t, "150", f.balance(t, recipient))

	shares, err := f.proxy.SharesOf(ctx, receiverAddr, res.TermIDs[0], big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "1000", shares.String())

	ev, ok := f.nextEvent(t, ch).(events.FeesCollected)
	require.True(t, ok)
	assert.Equal(t, payerAddr, ev.Payer)
	assert.Equal(t, "150", ev.Amount.String())
	assert.Equal(t, OpCreateAtoms, ev.Operation)

	rows, err := f.ledger.FeeCollections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, res.OperationID, rows[0].ID)
	assert.Equal(t, "150", rows[0].Amount.String())
}

func TestCreateAtomsInsufficientValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, payerAddr, 2000)

	_, err := f.proxy.CreateAtoms(ctx, CreateAtomsRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		Data:     [][]byte{[]byte("alpha"), []byte("beta")},
		Amounts:  []*big.Int{big.NewInt(1000), big.NewInt(0)},
		CurveID:  big.NewInt(1),
		Payment:  big.NewInt(1349), // one unit short of 1350
	})
	assert.ErrorIs(t, err, ErrInsufficientValue)

	// No external call was made and no state was touched.
	created, err := f.proxy.IsTermCreated(ctx, vault.AtomID([]byte("alpha")))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "2000", f.balance(t, payerAddr))
	assert.Equal(t, "0", f.balance(t, recipient))

	rows, err := f.ledger.FeeCollections(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCreateAtomsWrongArrayLengths(t *testing.T) {
	f := newFixture(t)

	_, err := f.proxy.CreateAtoms(context.Background(), CreateAtomsRequest{
		Caller:  payerAddr,
		Data:    [][]byte{[]byte("alpha"), []byte("beta")},
		Amounts: []*big.Int{big.NewInt(1)},
		Payment: big.NewInt(1_000_000),
	})
	assert.ErrorIs(t, err, ErrWrongArrayLengths)
}

func TestCreateAtomsUnfundedPayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The declared payment passes validation but the payer cannot fund it.
	_, err := f.proxy.CreateAtoms(ctx, CreateAtomsRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		Data:     [][]byte{[]byte("alpha")},
		Amounts:  []*big.Int{nil},
		Payment:  big.NewInt(100),
	})
	assert.ErrorIs(t, err, ErrInsufficientValue)

	created, err := f.proxy.IsTermCreated(ctx, vault.AtomID([]byte("alpha")))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCreateTriplesSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subj := f.createAtom(t, "s")
	pred := f.createAtom(t, "p")
	obj := f.createAtom(t, "o")

	// vaultCost = 200 + 400 deposit; fee = 100 + 5% of 400.
	f.fund(t, payerAddr, 720)
	res, err := f.proxy.CreateTriples(ctx, CreateTriplesRequest{
		Caller:     payerAddr,
		Receiver:   receiverAddr,
		Subjects:   []*big.Int{subj},
		Predicates: []*big.Int{pred},
		Objects:    []*big.Int{obj},
		Amounts:    []*big.Int{big.NewInt(400)},
		CurveID:    big.NewInt(1),
		Payment:    big.NewInt(720),
	})
	require.NoError(t, err)
	require.Len(t, res.TermIDs, 1)
	assert.Equal(t, "120", res.Fee.String())
	assert.Equal(t, "600", res.VaultCost.String())

	shares, err := f.proxy.SharesOf(ctx, receiverAddr, res.TermIDs[0], big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "400", shares.String())
}

func TestCreateTriplesWrongArrayLengths(t *testing.T) {
	f := newFixture(t)

	_, err := f.proxy.CreateTriples(context.Background(), CreateTriplesRequest{
		Caller:     payerAddr,
		Subjects:   []*big.Int{big.NewInt(1), big.NewInt(2)},
		Predicates: []*big.Int{big.NewInt(1)},
		Objects:    []*big.Int{big.NewInt(1), big.NewInt(2)},
		Amounts:    []*big.Int{nil, nil},
		Payment:    big.NewInt(1_000_000),
	})
	assert.ErrorIs(t, err, ErrWrongArrayLengths)
}

func TestDepositSettlesWithInverseAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	term := f.createAtom(t, "term")

	// totalDepositCost(1000) = 1000 + 100 + 50; the inverse recovers 1000
	// exactly with no remainder.
	f.fund(t, payerAddr, 1150)
	res, err := f.proxy.Deposit(ctx, DepositRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		TermID:   term,
		CurveID:  big.NewInt(1),
		Payment:  big.NewInt(1150),
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", res.Amount.String())
	assert.Equal(t, "1000", res.Shares.String())
	assert.Equal(t, "150", res.Fee.String())

	assert.Equal(t, "0", f.balance(t, payerAddr))
	assert.Equal(t, "150", f.balance(t, recipient))
	// 100 atom creation + 1000 deposit.
	assert.Equal(t, "1100", f.balance(t, vaultAccount))
}

func TestDepositRoundingResidueStaysInEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	term := f.createAtom(t, "term")

	// inverse(1151) truncates to 1000; the single residual unit is kept
	// in escrow, not given to the vault or the recipient.
	f.fund(t, payerAddr, 1151)
	res, err := f.proxy.Deposit(ctx, DepositRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		TermID:   term,
		CurveID:  big.NewInt(1),
		Payment:  big.NewInt(1151),
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", res.Amount.String())
	assert.Equal(t, "150", res.Fee.String())
	assert.Equal(t, "1", f.balance(t, f.proxy.EscrowAccount()))
}

func TestDepositBelowFixedFee(t *testing.T) {
	f := newFixture(t)
	term := f.createAtom(t, "term")

	for _, payment := range []int64{0, 1, 99, 100} {
		_, err := f.proxy.Deposit(context.Background(), DepositRequest{
			Caller:  payerAddr,
			TermID:  term,
			CurveID: big.NewInt(1),
			Payment: big.NewInt(payment),
		})
		assert.ErrorIs(t, err, ErrInsufficientValue, "payment %d", payment)
	}
}

func TestDepositVaultFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, payerAddr, 1150)

	_, err := f.proxy.Deposit(ctx, DepositRequest{
		Caller:   payerAddr,
		Receiver: receiverAddr,
		TermID:   big.NewInt(404), // never created
		CurveID:  big.NewInt(1),
		Payment:  big.NewInt(1150),
	})
	// The vault's error propagates unchanged.
	assert.ErrorIs(t, err, vault.ErrTermNotFound)

	// A failing vault call never results in collected fees.
	assert.Equal(t, "1150", f.balance(t, payerAddr))
	assert.Equal(t, "0", f.balance(t, recipient))
	assert.Equal(t, "0", f.balance(t, vaultAccount))

	rows, err := f.ledger.FeeCollections(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDepositSlippageRollsBack(t *testing.T) {
	f := newFixture(t)
	term := f.createAtom(t, "term")
	f.fund(t, payerAddr, 1150)

	_, err := f.proxy.Deposit(context.Background(), DepositRequest{
		Caller:    payerAddr,
		Receiver:  receiverAddr,
		TermID:    term,
		CurveID:   big.NewInt(1),
		MinShares: big.NewInt(1001),
		Payment:   big.NewInt(1150),
	})
	assert.ErrorIs(t, err, vault.ErrSlippage)
	assert.Equal(t, "1150", f.balance(t, payerAddr))
}

func TestDepositBatchSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createAtom(t, "a")
	b := f.createAtom(t, "b")

	// Two positive entries of 5000: fee = 2*100 + 5% of 10000 = 700.
	f.fund(t, payerAddr, 10700)
	res, err := f.proxy.DepositBatch(ctx, DepositBatchRequest{
		Caller:    payerAddr,
		Receiver:  receiverAddr,
		TermIDs:   []*big.Int{a, b},
		CurveIDs:  []*big.Int{big.NewInt(1), big.NewInt(1)},
		Amounts:   []*big.Int{big.NewInt(5000), big.NewInt(5000)},
		MinShares: []*big.Int{nil, nil},
		Payment:   big.NewInt(10700),
	})
	require.NoError(t, err)
	assert.Equal(t, "700", res.Fee.String())
	assert.Equal(t, "10000", res.VaultCost.String())
	require.Len(t, res.Shares, 2)
	assert.Equal(t, "5000", res.Shares[0].String())

	assert.Equal(t, "700", f.balance(t, recipient))
}

func TestDepositBatchZeroEntriesCarryNoFixedFee(t *testing.T) {
	f := newFixture(t)
	a := f.createAtom(t, "a")
	b := f.createAtom(t, "b")

	// One positive entry: fee = 100 + 5% of 1000 = 150, not 250.
	f.fund(t, payerAddr, 1150)
	res, err := f.proxy.DepositBatch(context.Background(), DepositBatchRequest{
		Caller:    payerAddr,
		Receiver:  receiverAddr,
		TermIDs:   []*big.Int{a, b},
		CurveIDs:  []*big.Int{big.NewInt(1), big.NewInt(1)},
		Amounts:   []*big.Int{big.NewInt(1000), big.NewInt(0)},
		MinShares: []*big.Int{nil, nil},
		Payment:   big.NewInt(1150),
	})
	require.NoError(t, err)
	assert.Equal(t, "150", res.Fee.String())
}

func TestDepositBatchWrongArrayLengths(t *testing.T) {
	f := newFixture(t)

	_, err := f.proxy.DepositBatch(context.Background(), DepositBatchRequest{
		Caller:    payerAddr,
		TermIDs:   []*big.Int{big.NewInt(1), big.NewInt(2)},
		CurveIDs:  []*big.Int{big.NewInt(1)},
		Amounts:   []*big.Int{big.NewInt(1), big.NewInt(2)},
		MinShares: []*big.Int{nil, nil},
		Payment:   big.NewInt(1_000_000),
	})
	assert.ErrorIs(t, err, ErrWrongArrayLengths)
}

func TestExcessPaymentStaysInEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createAtom(t, "a")

	// Required is 1150; the extra 350 is neither forwarded nor collected.
	f.fund(t, payerAddr, 1500)
	_, err := f.proxy.DepositBatch(ctx, DepositBatchRequest{
		Caller:    payerAddr,
		Receiver:  receiverAddr,
		TermIDs:   []*big.Int{a},
		CurveIDs:  []*big.Int{big.NewInt(1)},
		Amounts:   []*big.Int{big.NewInt(1000)},
		MinShares: []*big.Int{nil},
		Payment:   big.NewInt(1500),
	})
	require.NoError(t, err)

	assert.Equal(t, "150", f.balance(t, recipient))
	assert.Equal(t, "350", f.balance(t, f.proxy.EscrowAccount()))
	assert.Equal(t, "0", f.balance(t, payerAddr))
}

func TestPassthroughUnitCosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	atom, err := f.proxy.AtomUnitCost(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", atom.String())

	// Second read is served from the cost cache.
	atom, err = f.proxy.AtomUnitCost(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", atom.String())

	triple, err := f.proxy.TripleUnitCost(ctx)
	require.NoError(t, err)
	assert.Equal(t, "200", triple.String())
}
