package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/polkagate/poolkit/pkg/signer"
)

// runKeysCmd implements `poolkit keys <add|list>`.
func runKeysCmd(_ context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: poolkit keys <add|list>")
		return exitUsage
	}
	switch args[0] {
	case "add":
		return runKeysAdd(args[1:], stdout, stderr)
	case "list":
		return runKeysList(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown keys subcommand: %s\n", args[0])
		return exitUsage
	}
}

func openKeyring(configPath string) (*signer.Keyring, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return signer.NewKeyring(cfg.KeystoreDir)
}

func runKeysAdd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keys add", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var configPath, address, name, seedHex, password string
	cmd.StringVar(&configPath, "config", "", "YAML config file")
	cmd.StringVar(&address, "address", "", "Account address (REQUIRED)")
	cmd.StringVar(&name, "name", "", "Display name")
	cmd.StringVar(&seedHex, "seed", "", "Hex-encoded 32-byte ed25519 seed (REQUIRED)")
	cmd.StringVar(&password, "password", "", "Password to seal the seed with (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}
	if address == "" || seedHex == "" || password == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --address, --seed and --password are required")
		return exitUsage
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: --seed: %v\n", err)
		return exitUsage
	}

	keys, err := openKeyring(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if err := keys.Add(address, name, seed, password); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
	_, _ = fmt.Fprintf(stdout, "Added %s\n", address)
	return exitOK
}

func runKeysList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keys list", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var configPath string
	var jsonOut bool
	cmd.StringVar(&configPath, "config", "", "YAML config file")
	cmd.BoolVar(&jsonOut, "json", false, "Print results as JSON")
	if err := cmd.Parse(args); err != nil {
		return exitUsage
	}

	keys, err := openKeyring(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	accounts, err := keys.Accounts()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if jsonOut {
		_ = writeJSON(stdout, accounts)
		return exitOK
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\n", a.Address, a.Name)
	}
	_ = tw.Flush()
	return exitOK
}
