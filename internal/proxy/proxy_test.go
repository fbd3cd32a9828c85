package proxy

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wieedze/intuition-fee-proxy/internal/admin"
	"github.com/Wieedze/intuition-fee-proxy/internal/events"
	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
	"github.com/Wieedze/intuition-fee-proxy/internal/monitoring"
	"github.com/Wieedze/intuition-fee-proxy/internal/vault"
)

var (
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	outsider     = common.HexToAddress("0x000000000000000000000000000000000000000f")
	payerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	receiverAddr = common.HexToAddress("0x0000000000000000000000000000000000000002")
	recipient    = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	vaultAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fixture struct {
	proxy  *Proxy
	ledger *ledger.Ledger
	vault  *vault.InProc
	bus    *events.Bus
}

// newFixture builds a proxy over a fresh ledger and in-process vault with
// fixed fee 100, percentage fee 500 bp, atom cost 100, triple cost 200.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	l, err := ledger.Open(zap.NewNop(), ledger.Config{Path: filepath.Join(t.TempDir(), "proxy.db")})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	v, err := vault.NewInProc(zap.NewNop(), l, vault.Config{
		Account:    vaultAccount,
		AtomCost:   big.NewInt(100),
		TripleCost: big.NewInt(200),
	})
	require.NoError(t, err)

	bus := events.NewBus(zap.NewNop())
	t.Cleanup(bus.Close)

	px, err := New(zap.NewNop(), bus, monitoring.New("test"), l, Params{
		Vault:         v,
		VaultAccount:  vaultAccount,
		FeeRecipient:  recipient,
		FixedFee:      big.NewInt(100),
		PercentageFee: 500,
		InitialAdmins: []common.Address{adminAddr},
	})
	require.NoError(t, err)

	return &fixture{proxy: px, ledger: l, vault: v, bus: bus}
}

func (f *fixture) nextEvent(t *testing.T, ch <-chan events.Envelope) events.Event {
	t.Helper()
	select {
	case env := <-ch:
		return env.Event
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return nil
	}
}

func TestNewValidatesConstructorArguments(t *testing.T) {
	f := newFixture(t)

	base := Params{
		Vault:         f.vault,
		VaultAccount:  vaultAccount,
		FeeRecipient:  recipient,
		FixedFee:      big.NewInt(100),
		PercentageFee: 500,
		InitialAdmins: []common.Address{adminAddr},
	}

	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"nil vault", func(p *Params) { p.Vault = nil }, ErrInvalidMultiVaultAddress},
		{"zero vault account", func(p *Params) { p.VaultAccount = common.Address{} }, ErrInvalidMultiVaultAddress},
		{"zero recipient", func(p *Params) { p.FeeRecipient = common.Address{} }, ErrInvalidMultisigAddress},
		{"negative fixed fee", func(p *Params) { p.FixedFee = big.NewInt(-1) }, ErrNegativeFixedFee},
		{"percentage above 10000", func(p *Params) { p.PercentageFee = 10001 }, ErrFeePercentageTooHigh},
		{"no admins", func(p *Params) { p.InitialAdmins = nil }, admin.ErrNoAdmins},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			tc.mutate(&params)
			_, err := New(zap.NewNop(), f.bus, monitoring.New("test"), f.ledger, params)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSettersRequireAdmin(t *testing.T) {
	f := newFixture(t)
	p := f.proxy

	assert.ErrorIs(t, p.SetDepositFixedFee(outsider, big.NewInt(1)), ErrNotWhitelistedAdmin)
	assert.ErrorIs(t, p.SetDepositPercentageFee(outsider, 1), ErrNotWhitelistedAdmin)
	assert.ErrorIs(t, p.SetFeeRecipient(outsider, receiverAddr), ErrNotWhitelistedAdmin)
	assert.ErrorIs(t, p.SetWhitelistedAdmin(outsider, outsider, true), ErrNotWhitelistedAdmin)

	// Nothing changed.
	s := p.Schedule()
	assert.Equal(t, "100", s.FixedFee.String())
	assert.Equal(t, uint64(500), s.PercentageFee)
	assert.Equal(t, recipient, s.Recipient)
}

func TestSetDepositFixedFee(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	require.NoError(t, f.proxy.SetDepositFixedFee(adminAddr, big.NewInt(250)))
	assert.Equal(t, "250", f.proxy.Schedule().FixedFee.String())

	ev, ok := f.nextEvent(t, ch).(events.FixedFeeUpdated)
	require.True(t, ok)
	assert.Equal(t, "100", ev.Old.String())
	assert.Equal(t, "250", ev.New.String())

	assert.ErrorIs(t, f.proxy.SetDepositFixedFee(adminAddr, big.NewInt(-5)), ErrNegativeFixedFee)
}

func TestSetDepositPercentageFee(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	require.NoError(t, f.proxy.SetDepositPercentageFee(adminAddr, 10000))
	assert.Equal(t, uint64(10000), f.proxy.Schedule().PercentageFee)

	ev, ok := f.nextEvent(t, ch).(events.PercentageFeeUpdated)
	require.True(t, ok)
	assert.Equal(t, uint64(500), ev.Old)
	assert.Equal(t, uint64(10000), ev.New)

	err := f.proxy.SetDepositPercentageFee(adminAddr, 10001)
	assert.ErrorIs(t, err, ErrFeePercentageTooHigh)
	assert.Equal(t, uint64(10000), f.proxy.Schedule().PercentageFee)
}

func TestSetFeeRecipient(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	next := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	require.NoError(t, f.proxy.SetFeeRecipient(adminAddr, next))
	assert.Equal(t, next, f.proxy.Schedule().Recipient)

	ev, ok := f.nextEvent(t, ch).(events.FeeRecipientUpdated)
	require.True(t, ok)
	assert.Equal(t, recipient, ev.Old)
	assert.Equal(t, next, ev.New)

	assert.ErrorIs(t, f.proxy.SetFeeRecipient(adminAddr, common.Address{}), ErrZeroAddress)
}

func TestSetWhitelistedAdmin(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	require.NoError(t, f.proxy.SetWhitelistedAdmin(adminAddr, outsider, true))
	assert.True(t, f.proxy.IsAdmin(outsider))

	ev, ok := f.nextEvent(t, ch).(events.AdminStatusUpdated)
	require.True(t, ok)
	assert.Equal(t, outsider, ev.Address)
	assert.True(t, ev.Enabled)

	// The new admin can immediately mutate configuration.
	require.NoError(t, f.proxy.SetDepositFixedFee(outsider, big.NewInt(1)))

	// Admins may remove themselves, including the last one.
	require.NoError(t, f.proxy.SetWhitelistedAdmin(outsider, outsider, false))
	require.NoError(t, f.proxy.SetWhitelistedAdmin(adminAddr, adminAddr, false))
	assert.Empty(t, f.proxy.Admins())

	// Configuration is now permanently locked.
	assert.ErrorIs(t, f.proxy.SetDepositFixedFee(adminAddr, big.NewInt(2)), ErrNotWhitelistedAdmin)
}

func TestScheduleSnapshotIsolation(t *testing.T) {
	f := newFixture(t)

	snap := f.proxy.Schedule()
	require.NoError(t, f.proxy.SetDepositFixedFee(adminAddr, big.NewInt(999)))

	assert.Equal(t, "100", snap.FixedFee.String(), "snapshot must not see later mutations")

	snap.FixedFee.SetInt64(1)
	assert.Equal(t, "999", f.proxy.Schedule().FixedFee.String(), "mutating a snapshot must not affect the proxy")
}
