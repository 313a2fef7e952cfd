package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/polkagate/poolkit/pkg/chain"
)

// Estimator prices plans against a chain.
type Estimator struct {
	api    chain.API
	logger *slog.Logger
}

func NewEstimator(api chain.API, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default().With("component", "plan")
	}
	return &Estimator{api: api, logger: logger}
}

// Estimate prices the submittable form of p as signed by from and stores the
// result on the plan.
//
// An unbonding plan on a pool whose ledger already holds maxUnlockingChunks
// chunks needs the pool's unbonded funds withdrawn first. That cleanup runs on
// chain as part of the unbond, so it is attached to the plan and priced in but
// never submitted on its own.
func (e *Estimator) Estimate(ctx context.Context, p *Plan, from string) (chain.Fee, error) {
	fee, err := e.api.EstimateFee(ctx, p.Submittable(e.api), from)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEstimation, err)
	}

	p.Cleanup = nil
	if p.Mode == ModeUnbondAll {
		limit, err := e.maxUnlockingChunks(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrEstimation, err)
		}
		if limit > 0 && p.UnlockingChunks >= limit {
			cleanup := e.api.Call(chain.MethodPoolWithdrawUnbonded, p.PoolID, 1)
			extra, err := e.api.EstimateFee(ctx, cleanup, from)
			if err != nil {
				return "", fmt.Errorf("%w: cleanup: %w", ErrEstimation, err)
			}
			if fee, err = fee.Add(extra); err != nil {
				return "", fmt.Errorf("%w: %w", ErrEstimation, err)
			}
			p.Cleanup = &cleanup
		}
	}

	p.Fee = fee
	e.logger.DebugContext(ctx, "plan estimated",
		"plan_id", p.ID, "mode", p.Mode, "ops", len(p.Ops), "cleanup", p.Cleanup != nil, "fee", fee)
	return fee, nil
}

func (e *Estimator) maxUnlockingChunks(ctx context.Context) (int, error) {
	raw, err := e.api.Query(ctx, chain.ConstMaxUnlockingChunks)
	if err != nil {
		return 0, err
	}
	var n *int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode maxUnlockingChunks: %w", err)
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}
