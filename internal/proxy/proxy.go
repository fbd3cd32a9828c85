package proxy

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Wieedze/intuition-fee-proxy/internal/admin"
	"github.com/Wieedze/intuition-fee-proxy/internal/events"
	"github.com/Wieedze/intuition-fee-proxy/internal/fees"
	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
	"github.com/Wieedze/intuition-fee-proxy/internal/monitoring"
	"github.com/Wieedze/intuition-fee-proxy/internal/vault"
)

// Proxy is the fee-collecting intermediary between payers and the vault.
// It owns the mutable fee configuration and admin registry, reconciles
// payments against computed requirements, and forwards read-only queries to
// the vault untouched.
type Proxy struct {
	logger  *zap.Logger
	bus     *events.Bus
	metrics *monitoring.Metrics

	ledger *ledger.Ledger

	// Write-once at construction, immutable for the proxy's lifetime.
	vault        vault.Capability
	vaultAccount common.Address
	escrow       common.Address

	admins *admin.Registry

	mu       sync.RWMutex
	schedule fees.Schedule

	costs *costCache
}

// Params are the constructor arguments. They mirror the deployment
// contract: a non-zero vault, a non-zero recipient, a percentage fee within
// the basis-point range and a non-empty admin list, or construction fails.
type Params struct {
	Vault        vault.Capability
	VaultAccount common.Address

	FeeRecipient  common.Address
	FixedFee      *big.Int
	PercentageFee uint64

	InitialAdmins []common.Address

	// EscrowAccount holds payment value exceeding fee plus vault cost,
	// playing the part of value retained by the contract itself.
	EscrowAccount common.Address
}

// defaultEscrow is used when no escrow account is configured.
var defaultEscrow = common.BytesToAddress([]byte("fee-proxy-escrow"))

// New validates the constructor arguments and builds the proxy.
func New(logger *zap.Logger, bus *events.Bus, metrics *monitoring.Metrics, l *ledger.Ledger, p Params) (*Proxy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Vault == nil || p.VaultAccount == (common.Address{}) {
		return nil, ErrInvalidMultiVaultAddress
	}
	if p.FeeRecipient == (common.Address{}) {
		return nil, ErrInvalidMultisigAddress
	}
	if p.FixedFee != nil && p.FixedFee.Sign() < 0 {
		return nil, ErrNegativeFixedFee
	}
	if p.PercentageFee > fees.FeeDenominator {
		return nil, ErrFeePercentageTooHigh
	}

	registry, err := admin.NewRegistry(logger, p.InitialAdmins)
	if err != nil {
		return nil, err
	}

	escrow := p.EscrowAccount
	if escrow == (common.Address{}) {
		escrow = defaultEscrow
	}

	px := &Proxy{
		logger:       logger,
		bus:          bus,
		metrics:      metrics,
		ledger:       l,
		vault:        p.Vault,
		vaultAccount: p.VaultAccount,
		escrow:       escrow,
		admins:       registry,
		schedule: fees.Schedule{
			FixedFee:      p.FixedFee,
			PercentageFee: p.PercentageFee,
			Recipient:     p.FeeRecipient,
		}.Copy(),
		costs: newCostCache(),
	}
	metrics.SetAdminCount(registry.Len())

	logger.Info("fee proxy constructed",
		zap.String("vault", p.VaultAccount.Hex()),
		zap.String("fee_recipient", p.FeeRecipient.Hex()),
		zap.String("fixed_fee", px.schedule.FixedFee.String()),
		zap.Uint64("percentage_fee_bp", p.PercentageFee),
		zap.Int("admins", registry.Len()))
	return px, nil
}

// Schedule returns a snapshot of the current fee configuration.
func (p *Proxy) Schedule() fees.Schedule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schedule.Copy()
}

// EscrowAccount returns the account holding excess payment value.
func (p *Proxy) EscrowAccount() common.Address {
	return p.escrow
}

// IsAdmin reports whether addr is currently whitelisted.
func (p *Proxy) IsAdmin(addr common.Address) bool {
	return p.admins.Contains(addr)
}

// Admins returns the current admin addresses.
func (p *Proxy) Admins() []common.Address {
	return p.admins.Members()
}

// SetDepositFixedFee updates the flat per-entry fee. Admin-gated.
func (p *Proxy) SetDepositFixedFee(caller common.Address, fee *big.Int) error {
	if !p.admins.Contains(caller) {
		return ErrNotWhitelistedAdmin
	}
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Sign() < 0 {
		return ErrNegativeFixedFee
	}

	p.mu.Lock()
	old := p.schedule.FixedFee
	p.schedule.FixedFee = new(big.Int).Set(fee)
	p.mu.Unlock()

	p.metrics.ConfigUpdated()
	p.publish(events.FixedFeeUpdated{Old: old, New: new(big.Int).Set(fee)})
	p.logger.Info("deposit fixed fee updated",
		zap.String("caller", caller.Hex()),
		zap.String("old", old.String()),
		zap.String("new", fee.String()))
	return nil
}

// SetDepositPercentageFee updates the basis-point fee. Admin-gated; values
// above 10000 are rejected.
func (p *Proxy) SetDepositPercentageFee(caller common.Address, bp uint64) error {
	if !p.admins.Contains(caller) {
		return ErrNotWhitelistedAdmin
	}
	if bp > fees.FeeDenominator {
		return ErrFeePercentageTooHigh
	}

	p.mu.Lock()
	old := p.schedule.PercentageFee
	p.schedule.PercentageFee = bp
	p.mu.Unlock()

	p.metrics.ConfigUpdated()
	p.publish(events.PercentageFeeUpdated{Old: old, New: bp})
	p.logger.Info("deposit percentage fee updated",
		zap.String("caller", caller.Hex()),
		zap.Uint64("old", old),
		zap.Uint64("new", bp))
	return nil
}

// SetFeeRecipient updates the fee recipient. Admin-gated; the zero address
// is rejected.
func (p *Proxy) SetFeeRecipient(caller, recipient common.Address) error {
	if !p.admins.Contains(caller) {
		return ErrNotWhitelistedAdmin
	}
	if recipient == (common.Address{}) {
		return ErrZeroAddress
	}

	p.mu.Lock()
	old := p.schedule.Recipient
	p.schedule.Recipient = recipient
	p.mu.Unlock()

	p.metrics.ConfigUpdated()
	p.publish(events.FeeRecipientUpdated{Old: old, New: recipient})
	p.logger.Info("fee recipient updated",
		zap.String("caller", caller.Hex()),
		zap.String("old", old.Hex()),
		zap.String("new", recipient.Hex()))
	return nil
}

// SetWhitelistedAdmin adds or removes an admin. Admin-gated; admins may
// remove themselves, including the last one.
func (p *Proxy) SetWhitelistedAdmin(caller, addr common.Address, enabled bool) error {
	if !p.admins.Contains(caller) {
		return ErrNotWhitelistedAdmin
	}

	p.admins.Set(addr, enabled)

	p.metrics.ConfigUpdated()
	p.metrics.SetAdminCount(p.admins.Len())
	p.publish(events.AdminStatusUpdated{Address: addr, Enabled: enabled})
	p.logger.Info("admin status updated",
		zap.String("caller", caller.Hex()),
		zap.String("address", addr.Hex()),
		zap.Bool("enabled", enabled))
	return nil
}

func (p *Proxy) publish(ev events.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}
