package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/changeset"
	"github.com/polkagate/poolkit/pkg/plan"
	"github.com/polkagate/poolkit/pkg/proxy"
	"github.com/polkagate/poolkit/pkg/submit"
)

// signFlags select who signs and how.
type signFlags struct {
	from     string
	proxy    string
	password string
}

func (s *signFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.from, "from", "", "Acting account address (REQUIRED)")
	fs.StringVar(&s.proxy, "proxy", "", "Sign through this proxy delegate of --from")
	fs.StringVar(&s.password, "password", "", "Keystore password; without it the plan is only estimated")
}

type planReport struct {
	ChangeSet *changeset.ChangeSet `json:"changeSet,omitempty"`
	Plan      *plan.Plan           `json:"plan"`
	Fee       chain.Fee            `json:"fee"`
	Outcome   *submit.Outcome      `json:"outcome,omitempty"`
	DryRun    bool                 `json:"dryRun"`
}

// runEditPoolCmd implements `poolkit edit-pool`.
//
// Only the edit flags that are given change the form; an empty value clears
// a role, the payee or the commission.
func runEditPoolCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("edit-pool", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common       commonFlags
		sign         signFlags
		snapshotPath string
		name         string
		root         string
		nominator    string
		bouncer      string
		payee        string
		percent      string
	)
	common.register(cmd)
	sign.register(cmd)
	cmd.StringVar(&snapshotPath, "snapshot", "", "Pool snapshot JSON file (REQUIRED)")
	cmd.StringVar(&name, "name", "", "New pool name")
	cmd.StringVar(&root, "root", "", "New root role")
	cmd.StringVar(&nominator, "nominator", "", "New nominator role")
	cmd.StringVar(&bouncer, "bouncer", "", "New bouncer role")
	cmd.StringVar(&payee, "payee", "", "New commission payee")
	cmd.StringVar(&percent, "percent", "", "New commission percent (0-100)")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if snapshotPath == "" || sign.from == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --snapshot and --from are required")
		return exitUsage
	}

	var snap changeset.PoolSnapshot
	if err := readJSONFile(snapshotPath, &snap); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	edit := changeset.EditFromSnapshot(snap)
	var parseErr error
	cmd.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			edit.Name = name
		case "root":
			edit.Roles.Root = root
		case "nominator":
			edit.Roles.Nominator = nominator
		case "bouncer":
			edit.Roles.Bouncer = bouncer
		case "payee":
			edit.CommissionPayee = payee
		case "percent":
			if percent == "" {
				edit.CommissionPercent = nil
				return
			}
			v, err := strconv.ParseFloat(percent, 64)
			if err != nil {
				parseErr = fmt.Errorf("--percent: %w", err)
				return
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				parseErr = fmt.Errorf("--percent: %q is not a number", percent)
				return
			}
			edit.CommissionPercent = &v
		}
	})
	if parseErr != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", parseErr)
		return exitUsage
	}

	cs := changeset.Compute(snap, edit)
	if cs.IsEmpty() {
		_, _ = fmt.Fprintln(stderr, "Error: nothing to change")
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	report := &planReport{ChangeSet: &cs}
	return runPlan(ctx, svc, common, sign, report, func() (*plan.Plan, error) {
		return plan.PlanPoolEdit(snap, cs)
	}, stdout, stderr)
}

// runBulkCmd implements `poolkit unbond-all` and `poolkit remove-all`.
func runBulkCmd(ctx context.Context, name string, args []string, stdout, stderr io.Writer) int {
	mode := plan.ModeUnbondAll
	if name == "remove-all" {
		mode = plan.ModeRemoveAll
	}

	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common          commonFlags
		sign            signFlags
		poolID          uint
		membersPath     string
		unlockingChunks int
	)
	common.register(cmd)
	sign.register(cmd)
	cmd.UintVar(&poolID, "pool", 0, "Pool id (REQUIRED)")
	cmd.StringVar(&membersPath, "members", "", "Pool members JSON file (REQUIRED)")
	cmd.IntVar(&unlockingChunks, "unlocking-chunks", 0, "Unlocking chunks already on the pool ledger")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if poolID == 0 || membersPath == "" || sign.from == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --pool, --members and --from are required")
		return exitUsage
	}

	var members []plan.Member
	if err := readJSONFile(membersPath, &members); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	return runPlan(ctx, svc, common, sign, &planReport{}, func() (*plan.Plan, error) {
		p, err := plan.PlanBulk(mode, uint32(poolID), members, sign.from)
		if err != nil {
			return nil, err
		}
		p.UnlockingChunks = unlockingChunks
		return p, nil
	}, stdout, stderr)
}

// runPlan drives a session through plan, estimate and, given a password,
// confirmation.
func runPlan(ctx context.Context, svc *services, common commonFlags, sign signFlags, report *planReport, build func() (*plan.Plan, error), stdout, stderr io.Writer) int {
	px, err := resolveProxy(ctx, svc, sign.from, sign.proxy)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	acting := chain.Account{Address: sign.from}
	if n, err := svc.keys.Name(sign.from); err == nil {
		acting.Name = n
	}

	logger := svc.logger
	sub := submit.NewSubmitter(svc.api, svc.history, svc.cfg.Chain, logger.With("component", "submit")).
		WithNames(svc.keys).
		WithObservability(svc.obs)
	est := plan.NewEstimator(svc.api, logger.With("component", "plan"))
	sess := submit.NewSession(acting, est, sub, svc.keys, logger.With("component", "session")).
		WithObservability(svc.obs)

	if err := sess.Plan(ctx, build); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	report.Plan = sess.CurrentPlan()

	fee, err := sess.Estimate(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	report.Fee = fee

	if sign.password == "" {
		report.DryRun = true
		return printReport(stdout, common.jsonOut, report)
	}

	out, err := sess.Confirm(ctx, sign.password, px)
	if out.Status != "" {
		report.Outcome = &out
	}
	if code := printReport(stdout, common.jsonOut, report); code != exitOK {
		return code
	}
	switch {
	case err == nil:
		if out.HistoryErr != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: submitted but not recorded: %v\n", out.HistoryErr)
		}
		return exitOK
	case errors.Is(err, submit.AuthError), errors.Is(err, submit.SubmissionError):
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
}

func resolveProxy(ctx context.Context, svc *services, from, delegate string) (*chain.Proxy, error) {
	if delegate == "" {
		return nil, nil
	}
	proxies, err := proxy.Load(ctx, svc.api, from)
	if err != nil {
		return nil, err
	}
	return svc.policy.Find(proxies, delegate)
}

func printReport(w io.Writer, asJSON bool, r *planReport) int {
	if asJSON {
		if err := writeJSON(w, r); err != nil {
			return exitUsage
		}
		return exitOK
	}

	if r.ChangeSet != nil {
		fmt.Fprintln(w, "Changes:")
		for _, f := range r.ChangeSet.Changed() {
			fmt.Fprintf(w, "  %-18s %s\n", f, r.ChangeSet.Kinds()[f])
		}
	}
	p := r.Plan
	fmt.Fprintf(w, "Plan %s (%s, pool %d)\n", p.ID, p.Action(), p.PoolID)
	for i, op := range p.Ops {
		fmt.Fprintf(w, "  %d. %s\n", i+1, op)
	}
	if p.Cleanup != nil {
		fmt.Fprintf(w, "  cleanup (priced, runs on chain): %s\n", *p.Cleanup)
	}
	fmt.Fprintf(w, "Fee: %s\n", r.Fee)

	switch {
	case r.DryRun:
		fmt.Fprintln(w, "Dry run: pass --password to submit.")
	case r.Outcome == nil:
	case r.Outcome.Status == submit.Success:
		rc := r.Outcome.Receipt
		fmt.Fprintf(w, "Submitted: block %d, tx %s, fee %s\n", rc.Block, rc.TxHash, rc.Fee)
	default:
		fmt.Fprintf(w, "Failed: %s\n", r.Outcome.Reason)
	}
	return exitOK
}
