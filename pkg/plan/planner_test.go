package plan_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/changeset"
	"github.com/polkagate/poolkit/pkg/diff"
	"github.com/polkagate/poolkit/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() changeset.PoolSnapshot {
	return changeset.PoolSnapshot{
		PoolID: 42,
		Name:   "Pool",
		Roles:  changeset.Roles{Root: "5Root", Nominator: "5Nom", Bouncer: "5Bnc"},
		Commission: changeset.Commission{
			Payee:   "5Payee",
			Percent: diff.Ptr(5.0),
		},
	}
}

func TestPlanPoolEdit_NominatorOnly(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Roles.Nominator = "5NewNom"

	p, err := plan.PlanPoolEdit(s, changeset.Compute(s, e))
	require.NoError(t, err)
	require.Len(t, p.Ops, 1)

	op := p.Ops[0]
	assert.Equal(t, chain.MethodUpdateRoles, op.Method)
	assert.Equal(t, []any{
		uint32(42),
		plan.ConfigOp{Kind: plan.Noop},
		plan.ConfigOp{Kind: plan.Set, Value: "5NewNom"},
		plan.ConfigOp{Kind: plan.Noop},
	}, op.Args)

	sim := chain.NewSimulator()
	assert.Equal(t, op, p.Submittable(sim))
	assert.Equal(t, "Edit Pool", p.Action())
}

func TestPlanPoolEdit_EmptyChangeSet(t *testing.T) {
	s := snapshot()
	_, err := plan.PlanPoolEdit(s, changeset.Compute(s, changeset.EditFromSnapshot(s)))
	assert.ErrorIs(t, err, plan.ErrEmptyChangeSet)
}

func TestPlanPoolEdit_OrderAndShapes(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Name = "Renamed"
	e.Roles.Root = ""
	e.Roles.Bouncer = "5NewBnc"
	e.CommissionPercent = diff.Ptr(7.5)

	p, err := plan.PlanPoolEdit(s, changeset.Compute(s, e))
	require.NoError(t, err)

	methods := make([]string, len(p.Ops))
	for i, op := range p.Ops {
		methods[i] = op.Method
	}
	assert.Equal(t, []string{
		chain.MethodSetMetadata,
		chain.MethodUpdateRoles,
		chain.MethodUpdateRoles,
		chain.MethodSetCommission,
	}, methods)

	assert.Equal(t, []any{uint32(42), "Renamed"}, p.Ops[0].Args)
	assert.Equal(t, plan.ConfigOp{Kind: plan.Remove}, p.Ops[1].Args[1])
	assert.Equal(t, plan.ConfigOp{Kind: plan.Set, Value: "5NewBnc"}, p.Ops[2].Args[3])
	// value-only edit keeps the on-chain payee
	assert.Equal(t, []any{uint32(75_000_000), "5Payee"}, p.Ops[3].Args[1])

	sim := chain.NewSimulator()
	assert.Equal(t, chain.MethodBatchAll, p.Submittable(sim).Method)
}

func TestPlanPoolEdit_ClearedPayeeRemovesCommission(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.CommissionPayee = ""

	p, err := plan.PlanPoolEdit(s, changeset.Compute(s, e))
	require.NoError(t, err)
	require.Len(t, p.Ops, 1)
	assert.Equal(t, chain.MethodSetCommission, p.Ops[0].Method)
	assert.Nil(t, p.Ops[0].Args[1])
}

func TestPlanPoolEdit_ClearedNameSetsEmptyMetadata(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Name = "   "

	p, err := plan.PlanPoolEdit(s, changeset.Compute(s, e))
	require.NoError(t, err)
	assert.Equal(t, []any{uint32(42), ""}, p.Ops[0].Args)
}

func TestPlanPoolEdit_FingerprintMatchesChangeSet(t *testing.T) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Name = "Renamed"
	cs := changeset.Compute(s, e)

	p, err := plan.PlanPoolEdit(s, cs)
	require.NoError(t, err)
	fp, err := cs.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, p.Fingerprint)
	assert.NotEmpty(t, p.ID)
}

func members() []plan.Member {
	return []plan.Member{
		{Address: "M1", Points: "0"},
		{Address: "M2", Points: "50"},
		{Address: "actor", Points: "10"},
	}
}

func TestPlanBulk_UnbondAll(t *testing.T) {
	p, err := plan.PlanBulk(plan.ModeUnbondAll, 3, members(), "actor")
	require.NoError(t, err)
	require.Len(t, p.Ops, 1)
	assert.Equal(t, chain.NewCall(chain.MethodUnbond, "M2", "50"), p.Ops[0])

	sim := chain.NewSimulator()
	assert.Equal(t, chain.MethodUnbond, p.Submittable(sim).Method)
}

func TestPlanBulk_RemoveAll(t *testing.T) {
	p, err := plan.PlanBulk(plan.ModeRemoveAll, 3, members(), "actor")
	require.NoError(t, err)
	require.Len(t, p.Ops, 2)
	assert.Equal(t, chain.NewCall(chain.MethodWithdrawUnbonded, "M1", "0"), p.Ops[0])
	assert.Equal(t, chain.NewCall(chain.MethodWithdrawUnbonded, "M2", "50"), p.Ops[1])

	sim := chain.NewSimulator()
	sub := p.Submittable(sim)
	assert.Equal(t, chain.MethodBatchAll, sub.Method)
	assert.Equal(t, p.Ops, sub.Args[0])
}

func TestPlanBulk_NoMembers(t *testing.T) {
	_, err := plan.PlanBulk(plan.ModeUnbondAll, 3, []plan.Member{{Address: "actor", Points: "1"}, {Address: "M", Points: "0"}}, "actor")
	assert.ErrorIs(t, err, plan.ErrNoMembers)

	_, err = plan.PlanBulk(plan.ModeRemoveAll, 3, nil, "actor")
	assert.ErrorIs(t, err, plan.ErrNoMembers)

	_, err = plan.PlanBulk(plan.ModePoolEdit, 3, members(), "actor")
	assert.Error(t, err)
}

func TestMember_UnmarshalJSON(t *testing.T) {
	var ms []plan.Member
	require.NoError(t, json.Unmarshal([]byte(`[
		{"address":"A","points":123456789012345678901},
		{"address":"B","points":"7"},
		{"address":"C"}
	]`), &ms))
	assert.Equal(t, []plan.Member{
		{Address: "A", Points: "123456789012345678901"},
		{Address: "B", Points: "7"},
		{Address: "C", Points: "0"},
	}, ms)

	var bad plan.Member
	assert.Error(t, json.Unmarshal([]byte(`{"address":"A","points":-1}`), &bad))
}

func TestConfigOp_JSON(t *testing.T) {
	for _, tc := range []struct {
		op   plan.ConfigOp
		want string
	}{
		{plan.ConfigOp{}, `{"Noop":null}`},
		{plan.ConfigOp{Kind: plan.Remove}, `{"Remove":null}`},
		{plan.ConfigOp{Kind: plan.Set, Value: "5A"}, `{"Set":"5A"}`},
	} {
		raw, err := json.Marshal(tc.op)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(raw))

		var back plan.ConfigOp
		require.NoError(t, json.Unmarshal(raw, &back))
		if tc.op.Kind == "" {
			tc.op.Kind = plan.Noop
		}
		assert.Equal(t, tc.op, back)
	}
}

func TestEstimator_SingleSubmission(t *testing.T) {
	sim := chain.NewSimulator()
	sim.SetFee(chain.MethodWithdrawUnbonded, "10")
	p, err := plan.PlanBulk(plan.ModeRemoveAll, 3, members(), "actor")
	require.NoError(t, err)

	fee, err := plan.NewEstimator(sim, nil).Estimate(context.Background(), p, "actor")
	require.NoError(t, err)
	assert.Equal(t, chain.Fee("20"), fee)
	assert.Equal(t, fee, p.Fee)
	assert.Nil(t, p.Cleanup)

	est := sim.Estimated()
	require.Len(t, est, 1)
	assert.Equal(t, chain.MethodBatchAll, est[0].Method)
}

func TestEstimator_CleanupWhenUnlockingChunksFull(t *testing.T) {
	sim := chain.NewSimulator()
	require.NoError(t, sim.SetQuery(chain.ConstMaxUnlockingChunks, 32))
	sim.SetFee(chain.MethodUnbond, "100")
	sim.SetFee(chain.MethodPoolWithdrawUnbonded, "25")

	p, err := plan.PlanBulk(plan.ModeUnbondAll, 3, members(), "actor")
	require.NoError(t, err)
	est := plan.NewEstimator(sim, nil)

	p.UnlockingChunks = 31
	fee, err := est.Estimate(context.Background(), p, "actor")
	require.NoError(t, err)
	assert.Equal(t, chain.Fee("100"), fee)
	assert.Nil(t, p.Cleanup)

	p.UnlockingChunks = 32
	fee, err = est.Estimate(context.Background(), p, "actor")
	require.NoError(t, err)
	assert.Equal(t, chain.Fee("125"), fee)
	require.NotNil(t, p.Cleanup)
	assert.Equal(t, chain.NewCall(chain.MethodPoolWithdrawUnbonded, uint32(3), 1), *p.Cleanup)
	assert.Len(t, p.Ops, 1)
}

func TestEstimator_Failure(t *testing.T) {
	sim := chain.NewSimulator()
	boom := errors.New("rpc down")
	sim.FailEstimate(boom)

	p, err := plan.PlanBulk(plan.ModeRemoveAll, 3, members(), "actor")
	require.NoError(t, err)
	_, err = plan.NewEstimator(sim, nil).Estimate(context.Background(), p, "actor")
	assert.ErrorIs(t, err, plan.ErrEstimation)
	assert.ErrorIs(t, err, boom)
	assert.False(t, p.Estimated())
}
