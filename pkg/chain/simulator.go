package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultSimulatedFee is the per-call fee the simulator charges unless told otherwise.
const DefaultSimulatedFee Fee = "1000000000"

// Simulator is an in-memory API. It records what was estimated and submitted
// and lets tests program fees, query results and failures.
type Simulator struct {
	mu          sync.Mutex
	queries     map[string]json.RawMessage
	fees        map[string]Fee
	defaultFee  Fee
	estimateErr error
	submitErr   error
	dispatch    string
	block       uint64
	estimated   []Call
	submitted   []Call
}

func NewSimulator() *Simulator {
	return &Simulator{
		queries:    make(map[string]json.RawMessage),
		fees:       make(map[string]Fee),
		defaultFee: DefaultSimulatedFee,
		block:      1_000,
	}
}

func queryKey(path string, args []any) string {
	if len(args) == 0 {
		return path
	}
	raw, _ := json.Marshal(args)
	return path + string(raw)
}

// SetQuery programs the result for path called with args.
func (s *Simulator) SetQuery(path string, value any, args ...any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[queryKey(path, args)] = raw
	return nil
}

// SetFee programs the fee for every call of method.
func (s *Simulator) SetFee(method string, fee Fee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees[method] = fee
}

// FailEstimate makes every estimate fail with err until cleared with nil.
func (s *Simulator) FailEstimate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimateErr = err
}

// FailSubmit makes every submission fail with err until cleared with nil.
func (s *Simulator) FailSubmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErr = err
}

// FailDispatch includes submissions but marks them failed with text.
func (s *Simulator) FailDispatch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch = text
}

// Estimated returns the calls passed to EstimateFee.
func (s *Simulator) Estimated() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.estimated...)
}

// Submitted returns the calls passed to Submit.
func (s *Simulator) Submitted() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.submitted...)
}

func (s *Simulator) Call(method string, args ...any) Call { return NewCall(method, args...) }

func (s *Simulator) BatchAll(calls []Call) Call { return batchAll(calls) }

func (s *Simulator) ProxyWrap(real, proxyType string, call Call) Call {
	return proxyWrap(real, proxyType, call)
}

// Query returns the programmed result, or JSON null for unknown storage.
func (s *Simulator) Query(ctx context.Context, path string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if raw, ok := s.queries[queryKey(path, args)]; ok {
		return raw, nil
	}
	return json.RawMessage("null"), nil
}

func (s *Simulator) EstimateFee(ctx context.Context, call Call, from string) (Fee, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimated = append(s.estimated, call)
	if s.estimateErr != nil {
		return "", s.estimateErr
	}
	return s.feeOf(call)
}

// feeOf charges batches and proxies as the sum of the calls they carry.
func (s *Simulator) feeOf(call Call) (Fee, error) {
	switch {
	case call.Method == MethodBatchAll && len(call.Args) == 1:
		inner, _ := call.Args[0].([]Call)
		var total Fee = "0"
		for _, c := range inner {
			f, err := s.feeOf(c)
			if err != nil {
				return "", err
			}
			if total, err = total.Add(f); err != nil {
				return "", err
			}
		}
		return total, nil
	case call.Method == MethodProxy && len(call.Args) == 3:
		inner, _ := call.Args[2].(Call)
		return s.feeOf(inner)
	}
	if f, ok := s.fees[call.Method]; ok {
		return f, nil
	}
	return s.defaultFee, nil
}

func (s *Simulator) Submit(ctx context.Context, call Call, signer Signer) (SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, err
	}
	payload, err := call.Canonical()
	if err != nil {
		return SubmitResult{}, err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("chain: sign: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, call)
	if s.submitErr != nil {
		return SubmitResult{}, s.submitErr
	}
	fee, err := s.feeOf(call)
	if err != nil {
		return SubmitResult{}, err
	}
	s.block++
	h := sha256.Sum256(append(payload, sig...))
	return SubmitResult{
		Block:   s.block,
		Fee:     fee,
		TxHash:  "0x" + hex.EncodeToString(h[:]),
		Failure: s.dispatch,
	}, nil
}

var _ API = (*Simulator)(nil)
var _ API = (*HTTPClient)(nil)
