package changeset_test

import (
	"math"
	"testing"

	"github.com/polkagate/poolkit/pkg/changeset"
	"github.com/polkagate/poolkit/pkg/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() changeset.PoolSnapshot {
	return changeset.PoolSnapshot{
		PoolID:    7,
		Name:      "Polkagate Pool",
		Depositor: "5Depositor",
		Roles: changeset.Roles{
			Root:      "5Root",
			Nominator: "5Nominator",
			Bouncer:   "5Bouncer",
		},
		Commission:  changeset.Commission{Payee: "5Payee", Percent: diff.Ptr(5.0)},
		MemberCount: 12,
	}
}

func TestCompute_UntouchedFormIsEmpty(t *testing.T) {
	s := snapshot()
	cs := changeset.Compute(s, changeset.EditFromSnapshot(s))
	assert.True(t, cs.IsEmpty())
	assert.Empty(t, cs.Changed())
}

func TestCompute_NominatorOnly(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Roles.Nominator = "5NewNominator"

	cs := changeset.Compute(s, e)
	require.False(t, cs.IsEmpty())
	assert.Equal(t, []changeset.Field{changeset.FieldNominator}, cs.Changed())
	assert.Equal(t, diff.SetTo("5NewNominator"), cs.Nominator)
	assert.True(t, cs.HasRoleChanges())
	assert.False(t, cs.HasCommissionChanges())
}

func TestCompute_ClearedRole(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Roles.Bouncer = ""

	cs := changeset.Compute(s, e)
	assert.Equal(t, diff.Cleared, cs.Bouncer.Kind)
}

func TestCompute_NameWhitespaceIsUnchanged(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Name = "Polkagate Pool  "

	assert.True(t, changeset.Compute(s, e).IsEmpty())
}

func TestAggregate_CommissionValueSuppression(t *testing.T) {
	value := diff.SetTo(10.0)

	tests := []struct {
		name        string
		payee       diff.Change[string]
		payeeExists bool
		want        diff.Kind
	}{
		{"no payee context", diff.Change[string]{}, false, diff.Unchanged},
		{"payee on chain", diff.Change[string]{}, true, diff.Set},
		{"payee being set", diff.SetTo("5Payee"), false, diff.Set},
		{"payee being cleared", diff.Clear[string](), true, diff.Set},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := changeset.Aggregate(changeset.Fields{
				CommissionPayee: tt.payee,
				CommissionValue: value,
			}, tt.payeeExists)
			assert.Equal(t, tt.want, cs.CommissionValue.Kind)
			assert.Equal(t, tt.payee, cs.CommissionPayee)
		})
	}
}

func TestAggregate_PreservesOtherFields(t *testing.T) {
	f := changeset.Fields{
		Name:      diff.SetTo("x"),
		Root:      diff.Clear[string](),
		Nominator: diff.SetTo("5N"),
		Bouncer:   diff.SetTo("5B"),
	}
	cs := changeset.Aggregate(f, false)
	assert.Equal(t, f.Name, cs.Name)
	assert.Equal(t, f.Root, cs.Root)
	assert.Equal(t, f.Nominator, cs.Nominator)
	assert.Equal(t, f.Bouncer, cs.Bouncer)
	assert.Equal(t, []changeset.Field{
		changeset.FieldName, changeset.FieldRoot, changeset.FieldNominator, changeset.FieldBouncer,
	}, cs.Changed())
}

func TestCompute_CommissionWithoutPayeeDropped(t *testing.T) {
	s := snapshot()
	s.Commission = changeset.Commission{}
	e := changeset.EditFromSnapshot(s)
	e.CommissionPercent = diff.Ptr(3.0)

	assert.True(t, changeset.Compute(s, e).IsEmpty())

	e.CommissionPayee = "5Payee"
	cs := changeset.Compute(s, e)
	assert.Equal(t, []changeset.Field{changeset.FieldCommissionPayee, changeset.FieldCommissionValue}, cs.Changed())
}

func TestFingerprint(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Roles.Nominator = "5NewNominator"

	a, err := changeset.Compute(s, e).Fingerprint()
	require.NoError(t, err)
	b, err := changeset.Compute(s, e).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	e.Roles.Nominator = "5Other"
	c, err := changeset.Compute(s, e).Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestPerbill(t *testing.T) {
	assert.Equal(t, uint32(50_000_000), changeset.PerbillFromPercent(5))
	assert.Equal(t, uint32(1_000_000_000), changeset.PerbillFromPercent(150))
	assert.Equal(t, uint32(0), changeset.PerbillFromPercent(-1))
	assert.Equal(t, uint32(0), changeset.PerbillFromPercent(math.NaN()))
	assert.InDelta(t, 12.5, changeset.PercentFromPerbill(125_000_000), 1e-9)
}

func TestCompute_NaNPercentIsEmpty(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.CommissionPercent = diff.Ptr(math.NaN())
	cs := changeset.Compute(s, e)
	assert.True(t, cs.IsEmpty())
	_, err := cs.Fingerprint()
	require.NoError(t, err)
}
