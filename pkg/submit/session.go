package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/observability"
	"github.com/polkagate/poolkit/pkg/plan"
	"github.com/polkagate/poolkit/pkg/signer"
	"go.opentelemetry.io/otel/attribute"
)

// State of an edit session.
type State string

const (
	Idle                 State = "Idle"
	Planning             State = "Planning"
	Estimating           State = "Estimating"
	AwaitingConfirmation State = "AwaitingConfirmation"
	Submitting           State = "Submitting"
	Succeeded            State = "Succeeded"
	Failed               State = "Failed"
)

var transitions = map[State][]State{
	Idle:                 {Planning},
	Planning:             {Planning, Estimating, Idle},
	Estimating:           {Estimating, AwaitingConfirmation, Planning, Idle},
	AwaitingConfirmation: {Submitting, Planning, Idle},
	Submitting:           {Succeeded, Failed},
	Failed:               {AwaitingConfirmation},
	Succeeded:            {},
}

func canMove(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Unlocker opens a signer for an address.
type Unlocker interface {
	Unlock(address, password string) (chain.Signer, error)
}

// Session drives one edit or bulk action from planning to a single submission.
// It is safe for concurrent use; a second Confirm while one is in flight is
// rejected rather than submitted twice.
type Session struct {
	mu        sync.Mutex
	id        string
	state     State
	acting    chain.Account
	plan      *plan.Plan
	latestFP  string
	outcome   *Outcome
	estimator *plan.Estimator
	submitter *Submitter
	keys      Unlocker
	obs       *observability.Provider
	logger    *slog.Logger
	history   []State
}

func NewSession(acting chain.Account, est *plan.Estimator, sub *Submitter, keys Unlocker, logger *slog.Logger) *Session {
	id := uuid.NewString()
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	return &Session{
		id:        id,
		state:     Idle,
		acting:    acting,
		estimator: est,
		submitter: sub,
		keys:      keys,
		obs:       observability.Noop(),
		logger:    logger.With("session_id", id),
		history:   []State{Idle},
	}
}

func (s *Session) WithObservability(p *observability.Provider) *Session {
	s.obs = p
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns every state the session has been in, in order.
func (s *Session) Transitions() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

// CurrentPlan returns the plan being worked on, if any.
func (s *Session) CurrentPlan() *plan.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Outcome returns the last submission outcome, if any.
func (s *Session) Outcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// move must be called with mu held.
func (s *Session) move(to State) error {
	if !canMove(s.state, to) {
		return classify(CategoryValidation, fmt.Sprintf("%s -> %s", s.state, to), ErrInvalidState)
	}
	s.logger.Debug("session transition", "from", s.state, "to", to)
	s.state = to
	s.history = append(s.history, to)
	return nil
}

// Plan builds a plan with build and moves to Estimating. A build error is a
// ValidationError and leaves the session in Planning.
func (s *Session) Plan(ctx context.Context, build func() (*plan.Plan, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Planning {
		if err := s.move(Planning); err != nil {
			return err
		}
	}

	_, done := s.obs.TrackOperation(ctx, "plan")
	p, err := build()
	done(err)
	if err != nil {
		return classify(CategoryValidation, "plan", err)
	}

	s.plan = p
	s.latestFP = p.Fingerprint
	s.outcome = nil
	return s.move(Estimating)
}

// Estimate prices the current plan. On failure the session stays in
// Estimating so only estimation is retried.
func (s *Session) Estimate(ctx context.Context) (chain.Fee, error) {
	s.mu.Lock()
	if s.state != Estimating {
		defer s.mu.Unlock()
		return "", classify(CategoryValidation, "estimate", ErrInvalidState)
	}
	p := s.plan
	s.mu.Unlock()

	ctx, done := s.obs.TrackOperation(ctx, "estimate", attribute.String("mode", string(p.Mode)))
	fee, err := s.estimator.Estimate(ctx, p, s.acting.Address)
	done(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return "", classify(CategoryEstimation, "estimate", err)
	}
	if s.state != Estimating || s.plan != p {
		return "", classify(CategoryValidation, "estimate", ErrStalePlan)
	}
	return fee, s.move(AwaitingConfirmation)
}

// Invalidate tells the session the user's change set now has fingerprint fp.
// A mismatch is caught at Confirm.
func (s *Session) Invalidate(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestFP = fp
}

// Confirm unlocks the signer with password and submits the plan once. The
// signer is the proxy delegate when proxy is set, else the acting account.
//
// A wrong password returns an AuthError and leaves the state alone. A stale
// plan returns ErrStalePlan and drops back to Planning. A failed submission
// returns the Failure outcome with a SubmissionError and goes back to
// AwaitingConfirmation.
func (s *Session) Confirm(ctx context.Context, password string, proxy *chain.Proxy) (Outcome, error) {
	s.mu.Lock()
	if s.state != AwaitingConfirmation {
		defer s.mu.Unlock()
		return Outcome{}, classify(CategoryValidation, "confirm", ErrInvalidState)
	}
	if s.latestFP != s.plan.Fingerprint {
		defer s.mu.Unlock()
		s.logger.InfoContext(ctx, "plan is stale", "plan_id", s.plan.ID)
		s.plan = nil
		if err := s.move(Planning); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, classify(CategoryValidation, "confirm", ErrStalePlan)
	}

	address := s.acting.Address
	if proxy != nil {
		address = proxy.Delegate
	}
	sig, err := s.keys.Unlock(address, password)
	if err != nil {
		defer s.mu.Unlock()
		if errors.Is(err, signer.ErrAuth) {
			return Outcome{}, classify(CategoryAuth, "unlock", err)
		}
		return Outcome{}, classify(CategoryValidation, "unlock", err)
	}

	p := s.plan
	if err := s.move(Submitting); err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.mu.Unlock()

	out := s.submitter.Submit(ctx, p, sig, s.acting, proxy)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = &out
	if out.Status == Success {
		return out, s.move(Succeeded)
	}
	if err := s.move(Failed); err != nil {
		return out, err
	}
	if err := s.move(AwaitingConfirmation); err != nil {
		return out, err
	}
	return out, classify(CategorySubmission, "submit", errors.New(out.Reason))
}

// Cancel abandons the session before submission and returns it to Idle.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return nil
	}
	if err := s.move(Idle); err != nil {
		return err
	}
	s.plan = nil
	return nil
}
