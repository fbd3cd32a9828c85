package proxy

import (
	"context"
	"math/big"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
)

// Read-only vault passthrough: no validation, no fee logic, results
// returned verbatim. The unit costs are the only cached queries; they
// change only when the vault itself is reconfigured.

const costCacheTTL = time.Minute

type costCache struct {
	cache *bigcache.BigCache
}

func newCostCache() *costCache {
	c, err := bigcache.New(context.Background(), bigcache.DefaultConfig(costCacheTTL))
	if err != nil {
		// Cache is an optimization only; run uncached rather than fail.
		return &costCache{}
	}
	return &costCache{cache: c}
}

func (c *costCache) get(key string) (*big.Int, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(key)
	if err != nil {
		return nil, false
	}
	return new(big.Int).SetBytes(raw), true
}

func (c *costCache) put(key string, v *big.Int) {
	if c.cache != nil {
		c.cache.Set(key, v.Bytes())
	}
}

// AtomUnitCost returns the vault's atom creation cost.
func (p *Proxy) AtomUnitCost(ctx context.Context) (*big.Int, error) {
	if v, ok := p.costs.get("atom"); ok {
		return v, nil
	}
	v, err := p.vault.AtomUnitCost(ctx)
	if err != nil {
		return nil, err
	}
	p.costs.put("atom", v)
	return v, nil
}

// TripleUnitCost returns the vault's triple creation cost.
func (p *Proxy) TripleUnitCost(ctx context.Context) (*big.Int, error) {
	if v, ok := p.costs.get("triple"); ok {
		return v, nil
	}
	v, err := p.vault.TripleUnitCost(ctx)
	if err != nil {
		return nil, err
	}
	p.costs.put("triple", v)
	return v, nil
}

// IsTermCreated forwards the term existence query.
func (p *Proxy) IsTermCreated(ctx context.Context, termID *big.Int) (bool, error) {
	return p.vault.IsTermCreated(ctx, termID)
}

// SharesOf forwards the share balance query.
func (p *Proxy) SharesOf(ctx context.Context, owner common.Address, termID, curveID *big.Int) (*big.Int, error) {
	return p.vault.SharesOf(ctx, owner, termID, curveID)
}
