package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/polkagate/poolkit/pkg/kv"
)

// KVStore keeps each account's history as one JSON array in a kv.Store.
type KVStore struct {
	kv kv.Store
}

func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{kv: store}
}

// Key is the kv key holding an account's history.
func Key(chain, account string) string {
	return "history/" + chain + "/" + account
}

// Append adds records in a single read-modify-write, so concurrent appends to
// the same account never drop each other's entries.
func (s *KVStore) Append(ctx context.Context, chain, account string, records ...Record) error {
	if err := checkKey(chain, account); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return s.kv.Update(ctx, Key(chain, account), func(old []byte, ok bool) ([]byte, error) {
		var saved []Record
		if ok {
			if err := json.Unmarshal(old, &saved); err != nil {
				return nil, fmt.Errorf("history: decode %s/%s: %w", chain, account, err)
			}
		}
		return json.Marshal(append(saved, records...))
	})
}

func (s *KVStore) List(ctx context.Context, chain, account string) ([]Record, error) {
	if err := checkKey(chain, account); err != nil {
		return nil, err
	}
	var out []Record
	if _, err := kv.GetJSON(ctx, s.kv, Key(chain, account), &out); err != nil {
		return nil, err
	}
	return out, nil
}
