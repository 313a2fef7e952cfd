package plan

import (
	"encoding/json"
	"fmt"
)

// ConfigOpKind mirrors the pallet's ConfigOp variants.
type ConfigOpKind string

const (
	Noop   ConfigOpKind = "Noop"
	Set    ConfigOpKind = "Set"
	Remove ConfigOpKind = "Remove"
)

// ConfigOp is one role slot of an updateRoles call.
type ConfigOp struct {
	Kind  ConfigOpKind
	Value string
}

// MarshalJSON encodes as the pallet enum: {"Noop":null}, {"Set":"5F..."}, {"Remove":null}.
func (o ConfigOp) MarshalJSON() ([]byte, error) {
	kind := o.Kind
	if kind == "" {
		kind = Noop
	}
	var v any
	if kind == Set {
		v = o.Value
	}
	return json.Marshal(map[ConfigOpKind]any{kind: v})
}

func (o *ConfigOp) UnmarshalJSON(b []byte) error {
	var m map[ConfigOpKind]*string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("plan: config op must have exactly one variant, got %d", len(m))
	}
	for k, v := range m {
		switch k {
		case Noop, Remove:
			*o = ConfigOp{Kind: k}
		case Set:
			if v == nil {
				return fmt.Errorf("plan: Set config op without value")
			}
			*o = ConfigOp{Kind: Set, Value: *v}
		default:
			return fmt.Errorf("plan: unknown config op %q", k)
		}
	}
	return nil
}

func (o ConfigOp) String() string {
	if o.Kind == Set {
		return "Set(" + o.Value + ")"
	}
	if o.Kind == "" {
		return string(Noop)
	}
	return string(o.Kind)
}
