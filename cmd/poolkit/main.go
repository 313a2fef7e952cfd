package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	versionText = "v0.3.0"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[1] {
	case "edit-pool":
		return runEditPoolCmd(ctx, args[2:], stdout, stderr)
	case "unbond-all":
		return runBulkCmd(ctx, "unbond-all", args[2:], stdout, stderr)
	case "remove-all":
		return runBulkCmd(ctx, "remove-all", args[2:], stdout, stderr)
	case "history":
		return runHistoryCmd(ctx, args[2:], stdout, stderr)
	case "export":
		return runExportCmd(ctx, args[2:], stdout, stderr)
	case "import":
		return runImportCmd(ctx, args[2:], stdout, stderr)
	case "keys":
		return runKeysCmd(ctx, args[2:], stdout, stderr)
	case "proxies":
		return runProxiesCmd(ctx, args[2:], stdout, stderr)
	case "identities":
		return runIdentitiesCmd(ctx, args[2:], stdout, stderr)
	case "auction":
		return runAuctionCmd(ctx, args[2:], stdout, stderr)
	case "settings":
		return runSettingsCmd(ctx, args[2:], stdout, stderr)
	case "version":
		_, _ = fmt.Fprintln(stdout, "poolkit", versionText)
		return exitOK
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitUsage
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%spoolkit %s%s\n", colorBold+colorBlue, versionText, colorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  poolkit <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "POOL")
	printCommand(w, "edit-pool", "Change pool metadata, roles or commission (--snapshot, --from)")
	printCommand(w, "unbond-all", "Unbond every member except the depositor (--pool, --members)")
	printCommand(w, "remove-all", "Withdraw unbonded funds of every member (--pool, --members)")

	printSection(w, "ACCOUNTS")
	printCommand(w, "keys", "Manage the keystore (add/list)")
	printCommand(w, "proxies", "List the eligible proxies of an account")
	printCommand(w, "history", "Show transaction history (--account)")
	printCommand(w, "export", "Back up transaction history (--account)")
	printCommand(w, "import", "Restore transaction history (--digest)")

	printSection(w, "CHAIN")
	printCommand(w, "identities", "Show validator identities for the current era")
	printCommand(w, "auction", "Show the running auction and crowdloans")

	printSection(w, "UTILITIES")
	printCommand(w, "settings", "Show or change settings (get/set)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", colorGreen, name, colorReset, desc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
