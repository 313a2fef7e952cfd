package plan

import (
	"fmt"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/changeset"
	"github.com/polkagate/poolkit/pkg/diff"
)

// PlanPoolEdit builds the structured-change plan for a pool edit. Ops come out
// in the order name, roles (root, nominator, bouncer), commission.
func PlanPoolEdit(s changeset.PoolSnapshot, cs changeset.ChangeSet) (*Plan, error) {
	if cs.IsEmpty() {
		return nil, ErrEmptyChangeSet
	}
	fp, err := cs.Fingerprint()
	if err != nil {
		return nil, err
	}

	var ops []chain.Call
	if !cs.Name.IsZero() {
		name := ""
		if cs.Name.Kind == diff.Set {
			name = cs.Name.Value
		}
		ops = append(ops, chain.NewCall(chain.MethodSetMetadata, s.PoolID, name))
	}

	roles := []diff.Change[string]{cs.Root, cs.Nominator, cs.Bouncer}
	for slot, change := range roles {
		if change.IsZero() {
			continue
		}
		ops = append(ops, updateRoles(s.PoolID, slot, configOpFor(change)))
	}

	if cs.HasCommissionChanges() {
		ops = append(ops, setCommission(s, cs))
	}
	return newPlan(ModePoolEdit, s.PoolID, ops, fp), nil
}

func configOpFor(c diff.Change[string]) ConfigOp {
	switch c.Kind {
	case diff.Set:
		return ConfigOp{Kind: Set, Value: c.Value}
	case diff.Cleared:
		return ConfigOp{Kind: Remove}
	default:
		return ConfigOp{Kind: Noop}
	}
}

// updateRoles targets a single role slot and leaves the others as Noop.
func updateRoles(poolID uint32, slot int, op ConfigOp) chain.Call {
	args := []ConfigOp{{Kind: Noop}, {Kind: Noop}, {Kind: Noop}}
	args[slot] = op
	return chain.NewCall(chain.MethodUpdateRoles, poolID, args[0], args[1], args[2])
}

// setCommission resolves the (perbill, payee) pair from the change set,
// falling back to what is on chain for the half that did not change. A cleared
// payee removes the commission entirely.
func setCommission(s changeset.PoolSnapshot, cs changeset.ChangeSet) chain.Call {
	if cs.CommissionPayee.Kind == diff.Cleared {
		return chain.NewCall(chain.MethodSetCommission, s.PoolID, nil)
	}

	payee := s.Commission.Payee
	if cs.CommissionPayee.Kind == diff.Set {
		payee = cs.CommissionPayee.Value
	}

	var percent float64
	switch cs.CommissionValue.Kind {
	case diff.Set:
		percent = cs.CommissionValue.Value
	case diff.Cleared:
		percent = 0
	default:
		if s.Commission.Percent != nil {
			percent = *s.Commission.Percent
		}
	}
	return chain.NewCall(chain.MethodSetCommission, s.PoolID,
		[]any{changeset.PerbillFromPercent(percent), payee})
}

// PlanBulk builds an unbond-all or remove-all plan over the pool's members.
// The actor never acts on itself. UnbondAll also skips members without points.
func PlanBulk(mode Mode, poolID uint32, members []Member, actor string) (*Plan, error) {
	var method string
	switch mode {
	case ModeUnbondAll:
		method = chain.MethodUnbond
	case ModeRemoveAll:
		method = chain.MethodWithdrawUnbonded
	default:
		return nil, fmt.Errorf("plan: unsupported bulk mode %q", mode)
	}

	targets := SelectMembers(mode, members, actor)
	if len(targets) == 0 {
		return nil, ErrNoMembers
	}

	ops := make([]chain.Call, 0, len(targets))
	for _, m := range targets {
		ops = append(ops, chain.NewCall(method, m.Address, m.Points))
	}

	fp, err := fingerprint(struct {
		Mode    Mode     `json:"mode"`
		PoolID  uint32   `json:"poolId"`
		Members []Member `json:"members"`
	}{mode, poolID, targets})
	if err != nil {
		return nil, err
	}
	return newPlan(mode, poolID, ops, fp), nil
}

// SelectMembers returns the members a bulk action applies to, in input order.
func SelectMembers(mode Mode, members []Member, actor string) []Member {
	var out []Member
	for _, m := range members {
		if m.Address == actor {
			continue
		}
		if mode == ModeUnbondAll && !m.HasPoints() {
			continue
		}
		out = append(out, m)
	}
	return out
}
