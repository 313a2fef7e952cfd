package submit_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/changeset"
	"github.com/polkagate/poolkit/pkg/diff"
	"github.com/polkagate/poolkit/pkg/history"
	"github.com/polkagate/poolkit/pkg/kv"
	"github.com/polkagate/poolkit/pkg/plan"
	"github.com/polkagate/poolkit/pkg/signer"
	"github.com/polkagate/poolkit/pkg/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	actor    = "5Actor"
	delegate = "5Delegate"
	password = "correct horse"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type harness struct {
	sim     *chain.Simulator
	hist    *history.KVStore
	session *submit.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	keys, err := signer.NewKeyring(t.TempDir())
	require.NoError(t, err)
	keys.WithScryptN(1 << 10)
	require.NoError(t, keys.Add(actor, "Alice", bytes.Repeat([]byte{1}, 32), password))
	require.NoError(t, keys.Add(delegate, "Bob", bytes.Repeat([]byte{2}, 32), password))

	sim := chain.NewSimulator()
	hist := history.NewKVStore(kv.NewMemoryStore())
	sub := submit.NewSubmitter(sim, hist, "polkadot", nil).WithClock(func() time.Time { return now }).WithNames(keys)
	s := submit.NewSession(chain.Account{Address: actor}, plan.NewEstimator(sim, nil), sub, keys, nil)
	return &harness{sim: sim, hist: hist, session: s}
}

func snapshot() changeset.PoolSnapshot {
	return changeset.PoolSnapshot{
		PoolID:     9,
		Name:       "Pool",
		Roles:      changeset.Roles{Root: actor, Nominator: actor, Bouncer: actor},
		Commission: changeset.Commission{Payee: actor, Percent: diff.Ptr(1.0)},
	}
}

func editNominator(to string) (changeset.PoolSnapshot, changeset.ChangeSet) {
	s := snapshot()
	e := changeset.EditFromSnapshot(s)
	e.Roles.Nominator = to
	return s, changeset.Compute(s, e)
}

func planEdit(s changeset.PoolSnapshot, cs changeset.ChangeSet) func() (*plan.Plan, error) {
	return func() (*plan.Plan, error) { return plan.PlanPoolEdit(s, cs) }
}

func (h *harness) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.session.Plan(ctx, planEdit(editNominator("5NewNom"))))
	_, err := h.session.Estimate(ctx)
	require.NoError(t, err)
	require.Equal(t, submit.AwaitingConfirmation, h.session.State())
}

func TestSession_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ready(t)

	out, err := h.session.Confirm(ctx, password, nil)
	require.NoError(t, err)
	assert.Equal(t, submit.Success, out.Status)
	require.NotNil(t, out.Receipt)
	assert.Equal(t, "Edit Pool", out.Receipt.Action)
	assert.Equal(t, chain.Account{Address: actor, Name: "Alice"}, out.Receipt.From)
	assert.Nil(t, out.Receipt.ThroughProxy)
	assert.Equal(t, now, out.Receipt.Date)
	assert.Equal(t, submit.Succeeded, h.session.State())

	assert.Equal(t, []submit.State{
		submit.Idle, submit.Planning, submit.Estimating, submit.AwaitingConfirmation, submit.Submitting, submit.Succeeded,
	}, h.session.Transitions())

	submitted := h.sim.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, chain.MethodUpdateRoles, submitted[0].Method)

	records, err := h.hist.List(ctx, "polkadot", actor)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, out.Receipt.Record(), records[0])

	_, err = h.session.Confirm(ctx, password, nil)
	assert.ErrorIs(t, err, submit.ValidationError)
	assert.Error(t, h.session.Cancel())
}

func TestSession_WrongPasswordKeepsState(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	_, err := h.session.Confirm(context.Background(), "wrong", nil)
	assert.ErrorIs(t, err, submit.AuthError)
	assert.ErrorIs(t, err, signer.ErrAuth)
	assert.Equal(t, submit.CategoryAuth, submit.CategoryOf(err))
	assert.Equal(t, submit.AwaitingConfirmation, h.session.State())
	assert.Empty(t, h.sim.Submitted())
}

func TestSession_SubmissionFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ready(t)

	h.sim.FailSubmit(errors.New("pool is destroying"))
	out, err := h.session.Confirm(ctx, password, nil)
	assert.ErrorIs(t, err, submit.SubmissionError)
	assert.Equal(t, submit.Failure, out.Status)
	assert.Equal(t, "pool is destroying", out.Reason)
	assert.Equal(t, submit.AwaitingConfirmation, h.session.State())

	records, err := h.hist.List(ctx, "polkadot", actor)
	require.NoError(t, err)
	assert.Empty(t, records)

	h.sim.FailSubmit(nil)
	out, err = h.session.Confirm(ctx, password, nil)
	require.NoError(t, err)
	assert.Equal(t, submit.Success, out.Status)
	assert.Len(t, h.sim.Submitted(), 2)

	trail := h.session.Transitions()
	assert.Contains(t, trail, submit.Failed)
	assert.Equal(t, submit.Succeeded, trail[len(trail)-1])
}

func TestSession_DispatchFailureIsRecordedAsFail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ready(t)
	h.sim.FailDispatch("nominationPools.NotOpen")

	out, err := h.session.Confirm(ctx, password, nil)
	assert.ErrorIs(t, err, submit.SubmissionError)
	assert.Equal(t, submit.Failure, out.Status)
	assert.Equal(t, "nominationPools.NotOpen", out.Reason)
	require.NotNil(t, out.Receipt)
	assert.True(t, out.Receipt.Failed())
	assert.Equal(t, submit.AwaitingConfirmation, h.session.State())

	records, err := h.hist.List(ctx, "polkadot", actor)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.StatusFail, records[0].Status)
	assert.Equal(t, "nominationPools.NotOpen", records[0].FailureText)
	assert.Equal(t, out.Receipt.TxHash, records[0].TxHash)
	assert.Equal(t, "Edit Pool", records[0].Action)
}

func TestSession_EstimationFailureStaysInEstimating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.session.Plan(ctx, planEdit(editNominator("5NewNom"))))

	h.sim.FailEstimate(errors.New("rpc timeout"))
	_, err := h.session.Estimate(ctx)
	assert.ErrorIs(t, err, submit.EstimationError)
	assert.ErrorIs(t, err, plan.ErrEstimation)
	assert.Equal(t, submit.Estimating, h.session.State())

	h.sim.FailEstimate(nil)
	fee, err := h.session.Estimate(ctx)
	require.NoError(t, err)
	assert.Equal(t, chain.DefaultSimulatedFee, fee)
	assert.Equal(t, submit.AwaitingConfirmation, h.session.State())
}

func TestSession_StalePlan(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	_, cs := editNominator("5SomeoneElse")
	fp, err := cs.Fingerprint()
	require.NoError(t, err)
	h.session.Invalidate(fp)

	_, err = h.session.Confirm(context.Background(), password, nil)
	assert.ErrorIs(t, err, submit.ErrStalePlan)
	assert.Equal(t, submit.Planning, h.session.State())
	assert.Nil(t, h.session.CurrentPlan())
	assert.Empty(t, h.sim.Submitted())
}

func TestSession_SameFingerprintIsNotStale(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	_, cs := editNominator("5NewNom")
	fp, err := cs.Fingerprint()
	require.NoError(t, err)
	h.session.Invalidate(fp)

	_, err = h.session.Confirm(context.Background(), password, nil)
	require.NoError(t, err)
}

func TestSession_EmptyChangeSetIsValidationError(t *testing.T) {
	h := newHarness(t)
	s := snapshot()
	err := h.session.Plan(context.Background(), planEdit(s, changeset.Compute(s, changeset.EditFromSnapshot(s))))
	assert.ErrorIs(t, err, submit.ValidationError)
	assert.ErrorIs(t, err, plan.ErrEmptyChangeSet)
	assert.Equal(t, submit.Planning, h.session.State())
}

func TestSession_ThroughProxy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ready(t)

	proxy := &chain.Proxy{Delegate: delegate, ProxyType: "NominationPools"}
	_, err := h.session.Confirm(ctx, "wrong", proxy)
	assert.ErrorIs(t, err, submit.AuthError)

	out, err := h.session.Confirm(ctx, password, proxy)
	require.NoError(t, err)
	assert.Equal(t, &chain.Account{Address: delegate, Name: "Bob"}, out.Receipt.ThroughProxy)

	submitted := h.sim.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, chain.MethodProxy, submitted[0].Method)
	assert.Equal(t, actor, submitted[0].Args[0])
	assert.Equal(t, "NominationPools", submitted[0].Args[1])

	records, err := h.hist.List(ctx, "polkadot", actor)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, &history.Party{Address: delegate, Name: "Bob"}, records[0].ThroughProxy)
}

func TestSession_FeeFallsBackToEstimate(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.sim.SetFee(chain.MethodUpdateRoles, "0")

	out, err := h.session.Confirm(context.Background(), password, nil)
	require.NoError(t, err)
	assert.Equal(t, chain.DefaultSimulatedFee, out.Receipt.Fee)
}

func TestSession_Cancel(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	require.NoError(t, h.session.Cancel())
	assert.Equal(t, submit.Idle, h.session.State())
	assert.Nil(t, h.session.CurrentPlan())

	_, err := h.session.Confirm(context.Background(), password, nil)
	assert.ErrorIs(t, err, submit.ErrInvalidState)
}

func TestSession_BulkRemoveAllIsOneBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	members := []plan.Member{
		{Address: "M1", Points: "0"},
		{Address: "M2", Points: "50"},
		{Address: actor, Points: "10"},
	}
	require.NoError(t, h.session.Plan(ctx, func() (*plan.Plan, error) {
		return plan.PlanBulk(plan.ModeRemoveAll, 9, members, actor)
	}))
	_, err := h.session.Estimate(ctx)
	require.NoError(t, err)

	out, err := h.session.Confirm(ctx, password, nil)
	require.NoError(t, err)
	assert.Equal(t, "Remove All", out.Receipt.Action)

	submitted := h.sim.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, chain.MethodBatchAll, submitted[0].Method)
	assert.Len(t, submitted[0].Args[0], 2)
}

func TestErrorClassification(t *testing.T) {
	err := error(&submit.Error{Category: submit.CategoryEstimation, Op: "estimate", Err: plan.ErrEstimation})
	assert.ErrorIs(t, err, submit.EstimationError)
	assert.NotErrorIs(t, err, submit.AuthError)
	assert.Equal(t, "[ESTIMATION] estimate: plan: fee estimation failed", err.Error())
	assert.Equal(t, submit.Category(""), submit.CategoryOf(errors.New("plain")))
}
