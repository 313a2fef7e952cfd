package changeset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/polkagate/poolkit/pkg/diff"
)

// Field names a logical editable field of a pool.
type Field string

const (
	FieldName            Field = "name"
	FieldRoot            Field = "root"
	FieldNominator       Field = "nominator"
	FieldBouncer         Field = "bouncer"
	FieldCommissionPayee Field = "commissionPayee"
	FieldCommissionValue Field = "commissionValue"
)

// Fields are the raw per-field diffs before aggregation.
type Fields struct {
	Name            diff.Change[string]
	Root            diff.Change[string]
	Nominator       diff.Change[string]
	Bouncer         diff.Change[string]
	CommissionPayee diff.Change[string]
	CommissionValue diff.Change[float64]
}

// ChangeSet is the aggregated set of pool edits relative to a snapshot.
type ChangeSet struct {
	Name            diff.Change[string]  `json:"name"`
	Root            diff.Change[string]  `json:"root"`
	Nominator       diff.Change[string]  `json:"nominator"`
	Bouncer         diff.Change[string]  `json:"bouncer"`
	CommissionPayee diff.Change[string]  `json:"commissionPayee"`
	CommissionValue diff.Change[float64] `json:"commissionValue"`
}

// Aggregate combines field diffs into a ChangeSet.
//
// A commission value change only counts when there is payee context: the payee
// itself is being set or cleared, or the pool already has a payee. A bare
// value edit without a payee is dropped, since the chain takes value and payee
// together.
func Aggregate(f Fields, payeeExists bool) ChangeSet {
	cs := ChangeSet{
		Name:            f.Name,
		Root:            f.Root,
		Nominator:       f.Nominator,
		Bouncer:         f.Bouncer,
		CommissionPayee: f.CommissionPayee,
		CommissionValue: f.CommissionValue,
	}
	if f.CommissionPayee.IsZero() && !payeeExists {
		cs.CommissionValue = diff.Change[float64]{}
	}
	return cs
}

// Compute diffs edit against snapshot and aggregates the result.
func Compute(s PoolSnapshot, e PoolEdit) ChangeSet {
	return Aggregate(Fields{
		Name:            diff.DiffText(s.Name, e.Name),
		Root:            diff.DiffAddress(s.Roles.Root, e.Roles.Root),
		Nominator:       diff.DiffAddress(s.Roles.Nominator, e.Roles.Nominator),
		Bouncer:         diff.DiffAddress(s.Roles.Bouncer, e.Roles.Bouncer),
		CommissionPayee: diff.DiffAddress(s.Commission.Payee, e.CommissionPayee),
		CommissionValue: diff.DiffPercent(s.Commission.Percent, e.CommissionPercent),
	}, s.Commission.Payee != "")
}

// Kinds returns the change kind of every field, keyed by field name.
func (cs ChangeSet) Kinds() map[Field]diff.Kind {
	return map[Field]diff.Kind{
		FieldName:            cs.Name.Kind,
		FieldRoot:            cs.Root.Kind,
		FieldNominator:       cs.Nominator.Kind,
		FieldBouncer:         cs.Bouncer.Kind,
		FieldCommissionPayee: cs.CommissionPayee.Kind,
		FieldCommissionValue: cs.CommissionValue.Kind,
	}
}

var fieldOrder = []Field{
	FieldName, FieldRoot, FieldNominator, FieldBouncer, FieldCommissionPayee, FieldCommissionValue,
}

// Changed lists the fields that are not Unchanged, in a stable order.
func (cs ChangeSet) Changed() []Field {
	kinds := cs.Kinds()
	var out []Field
	for _, f := range fieldOrder {
		if kinds[f] != diff.Unchanged {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty reports whether every field is Unchanged.
func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Changed()) == 0
}

// HasRoleChanges reports whether any role slot changed.
func (cs ChangeSet) HasRoleChanges() bool {
	return !cs.Root.IsZero() || !cs.Nominator.IsZero() || !cs.Bouncer.IsZero()
}

// HasCommissionChanges reports whether payee or value changed.
func (cs ChangeSet) HasCommissionChanges() bool {
	return !cs.CommissionPayee.IsZero() || !cs.CommissionValue.IsZero()
}

// Fingerprint is the SHA-256 of the RFC 8785 canonical JSON of the change set.
// Two change sets with the same edits always share a fingerprint.
func (cs ChangeSet) Fingerprint() (string, error) {
	raw, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("changeset: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("changeset: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
