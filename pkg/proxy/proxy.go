// Package proxy loads an account's proxies and picks the ones allowed to sign
// pool operations for it.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/polkagate/poolkit/pkg/chain"
)

// DefaultPolicy admits proxies that can act on pools without a time delay.
const DefaultPolicy = `proxy_type in ["Any", "NonTransfer", "NominationPools"] && delay == 0`

// Load reads proxy.proxies(address). The storage value is a (proxies, deposit)
// tuple; only the proxies are returned.
func Load(ctx context.Context, api chain.API, address string) ([]chain.Proxy, error) {
	raw, err := api.Query(ctx, chain.QueryProxies, address)
	if err != nil {
		return nil, fmt.Errorf("proxy: load %s: %w", address, err)
	}
	var tuple []json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		return nil, fmt.Errorf("proxy: decode %s: %w", address, err)
	}
	if len(tuple) == 0 {
		return nil, nil
	}
	var proxies []chain.Proxy
	if err := json.Unmarshal(tuple[0], &proxies); err != nil {
		return nil, fmt.Errorf("proxy: decode %s: %w", address, err)
	}
	return proxies, nil
}

// Policy is a compiled CEL predicate over proxy_type and delay.
type Policy struct {
	expr string
	prg  cel.Program
}

func NewPolicy(expr string) (*Policy, error) {
	if expr == "" {
		expr = DefaultPolicy
	}
	env, err := cel.NewEnv(
		cel.Variable("proxy_type", cel.StringType),
		cel.Variable("delay", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("proxy: cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("proxy: compile policy: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("proxy: policy must be boolean, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("proxy: program: %w", err)
	}
	return &Policy{expr: expr, prg: prg}, nil
}

func (p *Policy) String() string { return p.expr }

// Allows evaluates the policy for one proxy.
func (p *Policy) Allows(px chain.Proxy) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"proxy_type": px.ProxyType,
		"delay":      int64(px.Delay),
	})
	if err != nil {
		return false, fmt.Errorf("proxy: eval: %w", err)
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok, nil
}

// Filter returns the proxies the policy allows, in input order.
func (p *Policy) Filter(proxies []chain.Proxy) ([]chain.Proxy, error) {
	var out []chain.Proxy
	for _, px := range proxies {
		ok, err := p.Allows(px)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, px)
		}
	}
	return out, nil
}

// Find returns the allowed proxy whose delegate is address.
func (p *Policy) Find(proxies []chain.Proxy, delegate string) (*chain.Proxy, error) {
	allowed, err := p.Filter(proxies)
	if err != nil {
		return nil, err
	}
	for i := range allowed {
		if allowed[i].Delegate == delegate {
			return &allowed[i], nil
		}
	}
	return nil, fmt.Errorf("proxy: %s is not an eligible proxy", delegate)
}
