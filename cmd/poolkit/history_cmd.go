package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/polkagate/poolkit/pkg/backup"
	"github.com/polkagate/poolkit/pkg/history"
)

// runHistoryCmd implements `poolkit history`.
func runHistoryCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common  commonFlags
		account string
	)
	common.register(cmd)
	cmd.StringVar(&account, "account", "", "Account address (REQUIRED)")

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

	records, err := svc.history.List(ctx, svc.cfg.Chain, account)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if common.jsonOut {
		if records == nil {
			records = []history.Record{}
		}
		_ = writeJSON(stdout, records)
		return exitOK
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(stdout, "No transactions.")
		return exitOK
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tACTION\tSTATUS\tBLOCK\tFEE\tTX")
	for _, r := range records {
		action := r.Action
		if r.ThroughProxy != nil {
			action += " (proxy " + r.ThroughProxy.Address + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Date.Format(time.RFC3339), action, r.Status, r.Block, r.Fee, r.TxHash)
	}
	_ = tw.Flush()
	return exitOK
}

// runExportCmd implements `poolkit export`: the account's history is written
// to the configured backup store and its digest printed.
func runExportCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common  commonFlags
		account string
	)
	common.register(cmd)
	cmd.StringVar(&account, "account", "", "Account address (REQUIRED)")

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

	store, err := svc.backupStore(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	digest, err := backup.NewExporter(svc.history, store, svc.logger).Export(ctx, svc.cfg.Chain, account)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	if common.jsonOut {
		_ = writeJSON(stdout, map[string]string{"digest": digest})
		return exitOK
	}
	_, _ = fmt.Fprintln(stdout, digest)
	return exitOK
}

// runImportCmd implements `poolkit import`.
func runImportCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("import", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common commonFlags
		digest string
	)
	common.register(cmd)
	cmd.StringVar(&digest, "digest", "", "Backup digest, sha256:<hex> (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if digest == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --digest is required")
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	store, err := svc.backupStore(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	b, n, err := backup.NewExporter(svc.history, store, svc.logger).Import(ctx, digest)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	if common.jsonOut {
		_ = writeJSON(stdout, map[string]any{"chain": b.Chain, "account": b.Account, "appended": n})
		return exitOK
	}
	_, _ = fmt.Fprintf(stdout, "Imported %d of %d records for %s on %s\n", n, len(b.Records), b.Account, b.Chain)
	return exitOK
}
