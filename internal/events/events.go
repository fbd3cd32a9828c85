package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is the observable boundary of the proxy: every successful
// configuration mutation and every settled fee collection produces one.
type Event interface {
	// Name returns the stable event name used on the wire.
	Name() string
}

// FixedFeeUpdated records a change to the flat per-entry fee.
type FixedFeeUpdated struct {
	Old *big.Int `json:"old"`
	New *big.Int `json:"new"`
}

func (FixedFeeUpdated) Name() string { return "DepositFixedFeeUpdated" }

// PercentageFeeUpdated records a change to the basis-point fee.
type PercentageFeeUpdated struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

func (PercentageFeeUpdated) Name() string { return "DepositPercentageFeeUpdated" }

// FeeRecipientUpdated records a change of the fee recipient address.
type FeeRecipientUpdated struct {
	Old common.Address `json:"old"`
	New common.Address `json:"new"`
}

func (FeeRecipientUpdated) Name() string { return "FeeRecipientUpdated" }

// AdminStatusUpdated records an address being added to or removed from the
// admin registry.
type AdminStatusUpdated struct {
	Address common.Address `json:"address"`
	Enabled bool           `json:"enabled"`
}

func (AdminStatusUpdated) Name() string { return "AdminStatusUpdated" }

// FeesCollected records one settled fee transfer.
type FeesCollected struct {
	Payer     common.Address `json:"payer"`
	Amount    *big.Int       `json:"amount"`
	Operation string         `json:"operation"`
}

func (FeesCollected) Name() string { return "FeesCollected" }

// Envelope is an event with its emission time, as delivered to subscribers.
type Envelope struct {
	Event Event
	At    time.Time
}
