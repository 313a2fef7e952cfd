// Package identity caches validator identities per chain and era and resolves
// missing ones through a background lookup queue.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/kv"
)

// StorageKey holds the saved identities of every chain, keyed by chain name.
const StorageKey = "validatorsIdentities"

// Identity is the on-chain identity info of an account.
type Identity struct {
	Display string `json:"display,omitempty"`
	Legal   string `json:"legal,omitempty"`
	Email   string `json:"email,omitempty"`
	Web     string `json:"web,omitempty"`
	Twitter string `json:"twitter,omitempty"`
	Riot    string `json:"riot,omitempty"`
}

// AccountInfo pairs an account with its identity. Identity is nil when the
// account has none.
type AccountInfo struct {
	AccountID string    `json:"accountId"`
	Identity  *Identity `json:"identity,omitempty"`
}

// Saved is the identity list fetched during one era.
type Saved struct {
	EraIndex     uint32        `json:"eraIndex"`
	AccountsInfo []AccountInfo `json:"accountsInfo"`
}

// Cache stores identities for one chain.
type Cache struct {
	store  kv.Store
	chain  string
	logger *slog.Logger
}

func NewCache(store kv.Store, chainName string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default().With("component", "identity")
	}
	return &Cache{store: store, chain: chainName, logger: logger}
}

// Load returns the saved identities for the chain, or nil.
func (c *Cache) Load(ctx context.Context) (*Saved, error) {
	var all map[string]Saved
	ok, err := kv.GetJSON(ctx, c.store, StorageKey, &all)
	if err != nil || !ok {
		return nil, err
	}
	saved, ok := all[c.chain]
	if !ok {
		return nil, nil
	}
	return &saved, nil
}

// NeedsFetch reports whether identities must be fetched for currentEra.
func (c *Cache) NeedsFetch(ctx context.Context, currentEra uint32) (bool, error) {
	saved, err := c.Load(ctx)
	if err != nil {
		return false, err
	}
	return saved == nil || saved.EraIndex != currentEra, nil
}

// Save replaces the chain's entry with fetched when it is non-empty and from
// a different era than the one saved. It reports whether it wrote.
func (c *Cache) Save(ctx context.Context, fetched Saved) (bool, error) {
	if len(fetched.AccountsInfo) == 0 {
		return false, nil
	}
	wrote := false
	err := c.store.Update(ctx, StorageKey, func(old []byte, ok bool) ([]byte, error) {
		all := map[string]Saved{}
		if ok {
			if err := json.Unmarshal(old, &all); err != nil {
				return nil, fmt.Errorf("identity: decode saved identities: %w", err)
			}
		}
		if prev, ok := all[c.chain]; ok && prev.EraIndex == fetched.EraIndex {
			return nil, kv.ErrAborted
		}
		all[c.chain] = fetched
		wrote = true
		return json.Marshal(all)
	})
	if err != nil {
		return false, err
	}
	if wrote {
		c.logger.InfoContext(ctx, "saved validator identities",
			"chain", c.chain, "era", fetched.EraIndex, "count", len(fetched.AccountsInfo))
	}
	return wrote, nil
}

// Resolver looks up identities for a set of accounts.
type Resolver interface {
	Lookup(ctx context.Context, ids []string) ([]AccountInfo, error)
}

// Get returns identities for validatorIDs. Saved identities are used as long
// as the era has not changed; otherwise they are fetched through r and
// saved. If the fetch yields nothing, the saved list is returned.
func (c *Cache) Get(ctx context.Context, api chain.API, r Resolver, validatorIDs []string) ([]AccountInfo, error) {
	era, err := CurrentEra(ctx, api)
	if err != nil {
		return nil, err
	}
	saved, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	if saved != nil && saved.EraIndex == era {
		return saved.AccountsInfo, nil
	}

	infos, err := r.Lookup(ctx, validatorIDs)
	if err != nil {
		if saved != nil {
			c.logger.WarnContext(ctx, "identity lookup failed, using saved", "chain", c.chain, "error", err)
			return saved.AccountsInfo, nil
		}
		return nil, err
	}
	if _, err := c.Save(ctx, Saved{EraIndex: era, AccountsInfo: infos}); err != nil {
		return nil, err
	}
	if len(infos) == 0 && saved != nil {
		return saved.AccountsInfo, nil
	}
	return infos, nil
}

// CurrentEra reads staking.currentEra.
func CurrentEra(ctx context.Context, api chain.API) (uint32, error) {
	raw, err := api.Query(ctx, chain.QueryCurrentEra)
	if err != nil {
		return 0, fmt.Errorf("identity: current era: %w", err)
	}
	var era *uint32
	if err := json.Unmarshal(raw, &era); err != nil {
		return 0, fmt.Errorf("identity: decode current era: %w", err)
	}
	if era == nil {
		return 0, fmt.Errorf("identity: current era unavailable")
	}
	return *era, nil
}
