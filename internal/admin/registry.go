package admin

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrNoAdmins indicates a registry constructed without any initial member.
var ErrNoAdmins = errors.New("admin registry requires at least one initial admin")

// Registry is the set of addresses authorized to mutate the proxy fee
// configuration. Any current member may add or remove any address, including
// itself. Removing the last member is allowed and permanently locks
// configuration mutation; the registry only logs when that happens.
type Registry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	members map[common.Address]struct{}
}

// NewRegistry creates a registry from a non-empty initial member list.
// Duplicates are collapsed.
func NewRegistry(logger *zap.Logger, initial []common.Address) (*Registry, error) {
	if len(initial) == 0 {
		return nil, ErrNoAdmins
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	members := make(map[common.Address]struct{}, len(initial))
	for _, addr := range initial {
		members[addr] = struct{}{}
	}

	return &Registry{
		logger:  logger,
		members: members,
	}, nil
}

// Contains reports whether addr is a current member.
func (r *Registry) Contains(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[addr]
	return ok
}

// Set adds or removes addr according to enabled. It does not check the
// caller; the proxy core gates mutations on current membership first.
func (r *Registry) Set(addr common.Address, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if enabled {
		r.members[addr] = struct{}{}
		return
	}

	delete(r.members, addr)
	if len(r.members) == 0 {
		// Nothing prevents admins from removing themselves down to zero;
		// after this point the fee configuration can never change again.
		r.logger.Warn("admin registry is now empty, fee configuration is locked",
			zap.String("removed", addr.Hex()))
	}
}

// Len returns the current member count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns the current members in a stable order.
func (r *Registry) Members() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, 0, len(r.members))
	for addr := range r.members {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
