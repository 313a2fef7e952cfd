package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/polkagate/poolkit/pkg/auction"
	"github.com/polkagate/poolkit/pkg/identity"
	"github.com/polkagate/poolkit/pkg/proxy"
)

// runProxiesCmd implements `poolkit proxies`.
func runProxiesCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("proxies", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common  commonFlags
		account string
		all     bool
	)
	common.register(cmd)
	cmd.StringVar(&account, "account", "", "Proxied account address (REQUIRED)")
	cmd.BoolVar(&all, "all", false, "Include proxies the policy rejects")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if account == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --account is required")
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	proxies, err := proxy.Load(ctx, svc.api, account)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	if !all {
		if proxies, err = svc.policy.Filter(proxies); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
	}
	if common.jsonOut {
		_ = writeJSON(stdout, proxies)
		return exitOK
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DELEGATE\tTYPE\tDELAY")
	for _, p := range proxies {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Delegate, p.ProxyType, p.Delay)
	}
	_ = tw.Flush()
	return exitOK
}

// runIdentitiesCmd implements `poolkit identities`.
func runIdentitiesCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("identities", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common     commonFlags
		validators string
	)
	common.register(cmd)
	cmd.StringVar(&validators, "validators", "", "Comma-separated validator addresses (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	var ids []string
	for _, v := range strings.Split(validators, ",") {
		if v = strings.TrimSpace(v); v != "" {
			ids = append(ids, v)
		}
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --validators is required")
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	queue := identity.NewQueue(svc.api, svc.logger.With("component", "identity"))
	if err := queue.Start(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = queue.Close() }()

	cache := identity.NewCache(svc.store, svc.cfg.Chain, svc.logger.With("component", "identity"))
	infos, err := cache.Get(ctx, svc.api, queue, ids)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	if common.jsonOut {
		_ = writeJSON(stdout, infos)
		return exitOK
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tDISPLAY")
	for _, info := range infos {
		display := "-"
		if info.Identity != nil && info.Identity.Display != "" {
			display = info.Identity.Display
		}
		fmt.Fprintf(tw, "%s\t%s\n", info.AccountID, display)
	}
	_ = tw.Flush()
	return exitOK
}

// runAuctionCmd implements `poolkit auction`.
func runAuctionCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("auction", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var common commonFlags
	common.register(cmd)
	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	a, err := auction.Fetch(ctx, svc.api)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	if common.jsonOut {
		_ = writeJSON(stdout, a)
		return exitOK
	}
	fmt.Fprintf(stdout, "Auction #%d at block %d\n", a.AuctionCounter, a.CurrentBlockNumber)
	if a.AuctionInfo != nil {
		fmt.Fprintf(stdout, "  lease period %d, ending at %d (offset %d)\n",
			a.AuctionInfo.LeasePeriod, a.AuctionInfo.EndBlock, a.BlockOffset)
	} else {
		fmt.Fprintln(stdout, "  no auction running")
	}
	fmt.Fprintf(stdout, "Min contribution: %s\n", a.MinContribution)
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARA\tRAISED\tCAP\tLEASED")
	for _, f := range a.Crowdloans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", f.ParaID, f.Raised, f.Cap, f.HasLeased)
	}
	_ = tw.Flush()
	return exitOK
}
