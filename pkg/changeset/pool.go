// Package changeset aggregates per-field diffs of a nomination pool into a
// single change set that gates the edit flow.
package changeset

import "github.com/polkagate/poolkit/pkg/diff"

// Roles are the transferable pool roles. The depositor is fixed at creation.
type Roles struct {
	Root      string `json:"root,omitempty"`
	Nominator string `json:"nominator,omitempty"`
	Bouncer   string `json:"bouncer,omitempty"`
}

// Commission is the pool's current commission. Percent is nil when the pool
// has never set one.
type Commission struct {
	Payee   string   `json:"payee,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
}

// PoolSnapshot is the on-chain state of a pool captured for an edit session.
type PoolSnapshot struct {
	PoolID          uint32     `json:"poolId"`
	Name            string     `json:"name"`
	Depositor       string     `json:"depositor"`
	Roles           Roles      `json:"roles"`
	Commission      Commission `json:"commission"`
	MemberCount     int        `json:"memberCount"`
	UnlockingChunks int        `json:"unlockingChunks"`
}

// PoolEdit holds what the user typed into the edit form.
type PoolEdit struct {
	Name              string   `json:"name"`
	Roles             Roles    `json:"roles"`
	CommissionPayee   string   `json:"commissionPayee,omitempty"`
	CommissionPercent *float64 `json:"commissionPercent,omitempty"`
}

// EditFromSnapshot seeds the form with the pool's current values, so an
// untouched form produces an empty change set.
func EditFromSnapshot(s PoolSnapshot) PoolEdit {
	e := PoolEdit{
		Name:            s.Name,
		Roles:           s.Roles,
		CommissionPayee: s.Commission.Payee,
	}
	if s.Commission.Percent != nil {
		e.CommissionPercent = diff.Ptr(*s.Commission.Percent)
	}
	return e
}

// PerbillPerPercent converts between a percentage and the chain's Perbill.
const PerbillPerPercent = 10_000_000

// PercentFromPerbill converts an on-chain Perbill into a percentage.
func PercentFromPerbill(p uint32) float64 {
	return float64(p) / PerbillPerPercent
}

// PerbillFromPercent converts a percentage (already clamped to [0,100]) into a Perbill.
func PerbillFromPercent(pct float64) uint32 {
	return uint32(diff.Clamp(pct, diff.MinPercent, diff.MaxPercent)*PerbillPerPercent + 0.5)
}
