// Package plan turns a change set or a bulk member action into an ordered list
// of chain calls and estimates the fee of what will actually be submitted.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/polkagate/poolkit/pkg/chain"
)

var (
	ErrEmptyChangeSet = errors.New("plan: nothing to change")
	ErrNoMembers      = errors.New("plan: no members to act on")
	ErrEstimation     = errors.New("plan: fee estimation failed")
)

// Mode is the kind of plan.
type Mode string

const (
	ModePoolEdit  Mode = "PoolEdit"
	ModeUnbondAll Mode = "UnbondAll"
	ModeRemoveAll Mode = "RemoveAll"
)

// Action is the history label for a mode.
func (m Mode) Action() string {
	switch m {
	case ModePoolEdit:
		return "Edit Pool"
	case ModeUnbondAll:
		return "Unbond All"
	case ModeRemoveAll:
		return "Remove All"
	default:
		return string(m)
	}
}

// Member is a pool member with its points as a decimal string. Points can
// exceed what a float64 holds exactly, so they never travel as JSON numbers.
type Member struct {
	Address string `json:"address"`
	Points  string `json:"points"`
}

// UnmarshalJSON accepts points as either a JSON number or a decimal string.
func (m *Member) UnmarshalJSON(b []byte) error {
	var raw struct {
		Address string      `json:"address"`
		Points  json.Number `json:"points"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	points := "0"
	if raw.Points != "" {
		n, ok := new(big.Int).SetString(raw.Points.String(), 10)
		if !ok || n.Sign() < 0 {
			return fmt.Errorf("plan: invalid points %q for %s", raw.Points, raw.Address)
		}
		points = n.String()
	}
	*m = Member{Address: raw.Address, Points: points}
	return nil
}

// HasPoints reports whether the member holds any points.
func (m Member) HasPoints() bool {
	n, ok := new(big.Int).SetString(m.Points, 10)
	return ok && n.Sign() > 0
}

// Plan is an ordered set of calls for one atomic submission.
type Plan struct {
	ID          string       `json:"id"`
	Mode        Mode         `json:"mode"`
	PoolID      uint32       `json:"poolId"`
	Ops         []chain.Call `json:"ops"`
	Fingerprint string       `json:"fingerprint"`

	// UnlockingChunks is the pool ledger's current unlocking chunk count.
	// Only unbonding plans look at it.
	UnlockingChunks int `json:"unlockingChunks,omitempty"`

	// Set by the Estimator.
	Cleanup *chain.Call `json:"cleanup,omitempty"`
	Fee     chain.Fee   `json:"fee,omitempty"`
}

// Action is the history label of the plan.
func (p *Plan) Action() string {
	return p.Mode.Action()
}

// Submittable is the call that gets estimated and submitted: the lone op, or
// all ops wrapped in utility.batchAll.
func (p *Plan) Submittable(api chain.API) chain.Call {
	if len(p.Ops) == 1 {
		return p.Ops[0]
	}
	return api.BatchAll(p.Ops)
}

// Estimated reports whether a fee has been attached.
func (p *Plan) Estimated() bool {
	return p.Fee != ""
}

func newPlan(mode Mode, poolID uint32, ops []chain.Call, fingerprint string) *Plan {
	return &Plan{
		ID:          uuid.NewString(),
		Mode:        mode,
		PoolID:      poolID,
		Ops:         ops,
		Fingerprint: fingerprint,
	}
}

// fingerprint hashes the canonical JSON of v.
func fingerprint(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("plan: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("plan: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
