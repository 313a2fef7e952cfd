// Package submit signs and sends a plan as one extrinsic and drives the edit
// session from planning through confirmation.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/history"
	"github.com/polkagate/poolkit/pkg/observability"
	"github.com/polkagate/poolkit/pkg/plan"
	"go.opentelemetry.io/otel/attribute"
)

// Status of a submission.
type Status string

const (
	Success Status = "success"
	Failure Status = "failure"
)

// Receipt describes an included extrinsic.
type Receipt struct {
	Action       string         `json:"action"`
	Block        uint64         `json:"block"`
	Fee          chain.Fee      `json:"fee"`
	TxHash       string         `json:"txHash"`
	From         chain.Account  `json:"from"`
	ThroughProxy *chain.Account `json:"throughProxy,omitempty"`
	Date         time.Time      `json:"date"`
	Chain        string         `json:"chain"`
	FailureText  string         `json:"failureText,omitempty"`
}

// Failed reports whether the extrinsic was included but failed dispatch.
func (r Receipt) Failed() bool {
	return r.FailureText != ""
}

// Record converts the receipt into a history entry.
func (r Receipt) Record() history.Record {
	rec := history.Record{
		Action: r.Action,
		Block:  r.Block,
		Date:   r.Date,
		Fee:    string(r.Fee),
		From:   history.Party{Address: r.From.Address, Name: r.From.Name},
		Status: history.StatusSuccess,
		TxHash: r.TxHash,
		Chain:  r.Chain,
	}
	if r.Failed() {
		rec.Status = history.StatusFail
		rec.FailureText = r.FailureText
	}
	if r.ThroughProxy != nil {
		rec.ThroughProxy = &history.Party{Address: r.ThroughProxy.Address, Name: r.ThroughProxy.Name}
	}
	return rec
}

// Outcome is the result of one submission attempt. A Failure carries a
// Receipt when the extrinsic was included but failed dispatch.
type Outcome struct {
	Status  Status   `json:"status"`
	Receipt *Receipt `json:"receipt,omitempty"`
	Reason  string   `json:"reason,omitempty"`

	// HistoryErr is set when the extrinsic succeeded but could not be recorded.
	HistoryErr error `json:"-"`
}

// Names resolves display names for addresses.
type Names interface {
	Name(address string) (string, error)
}

// Submitter sends plans. It never retries a submission.
type Submitter struct {
	api     chain.API
	history history.Store
	chain   string
	names   Names
	obs     *observability.Provider
	logger  *slog.Logger
	clock   func() time.Time
}

func NewSubmitter(api chain.API, hist history.Store, chainName string, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default().With("component", "submit")
	}
	return &Submitter{
		api:     api,
		history: hist,
		chain:   chainName,
		obs:     observability.Noop(),
		logger:  logger,
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (s *Submitter) WithClock(clock func() time.Time) *Submitter {
	s.clock = clock
	return s
}

func (s *Submitter) WithNames(n Names) *Submitter {
	s.names = n
	return s
}

func (s *Submitter) WithObservability(p *observability.Provider) *Submitter {
	s.obs = p
	return s
}

func (s *Submitter) nameOf(address string) string {
	if s.names == nil {
		return ""
	}
	name, err := s.names.Name(address)
	if err != nil {
		return ""
	}
	return name
}

// Submit builds the submittable call, wraps it in proxy.proxy when a proxy is
// given, signs it with signer and sends it once. Every included extrinsic is
// appended to history, failed dispatches with status fail. A submission that
// never reached a block records nothing.
func (s *Submitter) Submit(ctx context.Context, p *plan.Plan, signer chain.Signer, acting chain.Account, proxy *chain.Proxy) (out Outcome) {
	ctx, done := s.obs.TrackOperation(ctx, "submit",
		attribute.String("mode", string(p.Mode)),
		attribute.Bool("proxied", proxy != nil),
	)
	defer func() {
		var err error
		if out.Status != Success {
			err = errors.New(out.Reason)
		}
		done(err)
	}()

	expected := acting.Address
	if proxy != nil {
		expected = proxy.Delegate
	}
	if signer.Address() != expected {
		return Outcome{Status: Failure, Reason: fmt.Sprintf("signer %s cannot act for %s", signer.Address(), expected)}
	}

	call := p.Submittable(s.api)
	if proxy != nil {
		call = s.api.ProxyWrap(acting.Address, proxy.ProxyType, call)
	}

	res, err := s.api.Submit(ctx, call, signer)
	if err != nil {
		s.logger.WarnContext(ctx, "submission failed", "plan_id", p.ID, "error", err)
		return Outcome{Status: Failure, Reason: err.Error()}
	}

	fee := res.Fee
	if fee.IsZero() {
		fee = p.Fee
	}
	receipt := &Receipt{
		Action: p.Action(),
		Block:  res.Block,
		Fee:    fee,
		TxHash: res.TxHash,
		From:   chain.Account{Address: acting.Address, Name: acting.Name},
		Date:   s.clock().UTC(),
		Chain:  s.chain,

		FailureText: res.Failure,
	}
	if receipt.From.Name == "" {
		receipt.From.Name = s.nameOf(acting.Address)
	}
	if proxy != nil {
		receipt.ThroughProxy = &chain.Account{Address: proxy.Delegate, Name: s.nameOf(proxy.Delegate)}
	}

	out = Outcome{Status: Success, Receipt: receipt}
	if receipt.Failed() {
		out.Status, out.Reason = Failure, res.Failure
	}
	if s.history != nil {
		if err := s.history.Append(ctx, s.chain, acting.Address, receipt.Record()); err != nil {
			s.logger.ErrorContext(ctx, "failed to record history", "tx_hash", receipt.TxHash, "error", err)
			out.HistoryErr = err
		}
	}
	if receipt.Failed() {
		s.logger.WarnContext(ctx, "extrinsic failed on chain",
			"plan_id", p.ID, "block", receipt.Block, "tx_hash", receipt.TxHash, "failure", res.Failure)
		return out
	}
	s.logger.InfoContext(ctx, "plan submitted",
		"plan_id", p.ID, "action", receipt.Action, "block", receipt.Block, "tx_hash", receipt.TxHash)
	return out
}
