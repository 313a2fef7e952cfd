// Package chain is the boundary to a Substrate-family chain. Everything above it
// works with opaque call descriptors; encoding and signing payload formats are
// the gateway's concern.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/gowebpki/jcs"
)

// Well-known call and query paths.
const (
	MethodSetMetadata          = "nominationPools.setMetadata"
	MethodUpdateRoles          = "nominationPools.updateRoles"
	MethodSetCommission        = "nominationPools.setCommission"
	MethodUnbond               = "nominationPools.unbond"
	MethodWithdrawUnbonded     = "nominationPools.withdrawUnbonded"
	MethodPoolWithdrawUnbonded = "nominationPools.poolWithdrawUnbonded"
	MethodBatchAll             = "utility.batchAll"
	MethodProxy                = "proxy.proxy"

	ConstMaxUnlockingChunks = "consts.staking.maxUnlockingChunks"
	QueryProxies            = "proxy.proxies"
	QueryIdentityOf         = "identity.identityOf"
	QueryCurrentEra         = "staking.currentEra"
)

var (
	ErrUnavailable = errors.New("chain: unavailable")
	ErrInvalidFee  = errors.New("chain: invalid fee")
)

// Call is an opaque extrinsic descriptor.
type Call struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// NewCall builds a call descriptor.
func NewCall(method string, args ...any) Call {
	if args == nil {
		args = []any{}
	}
	return Call{Method: method, Args: args}
}

// Canonical returns the RFC 8785 encoding of the call.
func (c Call) Canonical() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal call %s: %w", c.Method, err)
	}
	return jcs.Transform(raw)
}

func (c Call) String() string {
	return c.Method
}

// Fee is an amount in planck, kept as a decimal string so it never loses
// precision.
type Fee string

// ParseFee validates s as a non-negative integer.
func ParseFee(s string) (Fee, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidFee, s)
	}
	return Fee(n.String()), nil
}

func (f Fee) bigInt() (*big.Int, error) {
	if f == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(string(f), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFee, string(f))
	}
	return n, nil
}

// Add returns f + o. An empty fee counts as zero.
func (f Fee) Add(o Fee) (Fee, error) {
	a, err := f.bigInt()
	if err != nil {
		return "", err
	}
	b, err := o.bigInt()
	if err != nil {
		return "", err
	}
	return Fee(a.Add(a, b).String()), nil
}

// IsZero reports whether no fee is recorded.
func (f Fee) IsZero() bool {
	n, err := f.bigInt()
	return err != nil || n.Sign() == 0
}

// SubmitResult is what the chain reports after inclusion. Failure carries the
// dispatch error text when the extrinsic was included but failed.
type SubmitResult struct {
	Block   uint64 `json:"block"`
	Fee     Fee    `json:"fee"`
	TxHash  string `json:"txHash"`
	Failure string `json:"failure,omitempty"`
}

// Failed reports whether the extrinsic failed on chain.
func (r SubmitResult) Failed() bool {
	return r.Failure != ""
}

// Account is an address with its optional keyring name.
type Account struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Proxy is a delegate allowed to act for a proxied account.
type Proxy struct {
	Delegate  string `json:"delegate"`
	ProxyType string `json:"proxyType"`
	Delay     uint32 `json:"delay"`
}

// Signer signs extrinsic payloads for one address.
type Signer interface {
	Address() string
	Sign(payload []byte) ([]byte, error)
}

// API is the chain capability used by the planner, submitter and readers.
type API interface {
	Query(ctx context.Context, path string, args ...any) (json.RawMessage, error)
	Call(method string, args ...any) Call
	EstimateFee(ctx context.Context, call Call, from string) (Fee, error)
	Submit(ctx context.Context, call Call, signer Signer) (SubmitResult, error)
	BatchAll(calls []Call) Call
	ProxyWrap(real, proxyType string, call Call) Call
}

// Descriptor helpers shared by API implementations.

func batchAll(calls []Call) Call {
	out := make([]Call, len(calls))
	copy(out, calls)
	return NewCall(MethodBatchAll, out)
}

func proxyWrap(real, proxyType string, call Call) Call {
	return NewCall(MethodProxy, real, proxyType, call)
}
