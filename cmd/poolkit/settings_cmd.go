package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/polkagate/poolkit/pkg/settings"
)

// runSettingsCmd implements `poolkit settings <get|set>`.
func runSettingsCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: poolkit settings <get|set> [flags]")
		return exitUsage
	}
	sub := args[0]
	if sub != "get" && sub != "set" {
		_, _ = fmt.Fprintf(stderr, "Unknown settings subcommand: %s\n", sub)
		return exitUsage
	}

	cmd := flag.NewFlagSet("settings "+sub, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		common                                       commonFlags
		language, theme, camera, notification, chain string
	)
	common.register(cmd)
	if sub == "set" {
		cmd.StringVar(&language, "language", "", "Interface language")
		cmd.StringVar(&theme, "theme", "", "dark or light")
		cmd.StringVar(&camera, "camera", "", "on or off")
		cmd.StringVar(&notification, "notification", "", "extension, popup or window")
		cmd.StringVar(&chain, "default-chain", "", "Chain selected at start")
	}
	if err := cmd.Parse(args[1:]); err != nil {
		return exitUsage
	}

	svc, err := openServices(ctx, common, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer svc.Close()

	store := settings.NewStore(svc.store, svc.logger.With("component", "settings"))
	current, err := store.Get(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	if sub == "set" {
		cmd.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "language":
				current.Language = language
			case "theme":
				current.Theme = theme
			case "camera":
				current.Camera = camera
			case "notification":
				current.Notification = notification
			case "default-chain":
				current.DefaultChain = chain
			}
		})
		if err := store.Set(ctx, current); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
	}

	if common.jsonOut {
		_ = writeJSON(stdout, current)
		return exitOK
	}
	fmt.Fprintf(stdout, "language:      %s\n", current.Language)
	fmt.Fprintf(stdout, "theme:         %s\n", current.Theme)
	fmt.Fprintf(stdout, "camera:        %s\n", current.Camera)
	fmt.Fprintf(stdout, "notification:  %s\n", current.Notification)
	fmt.Fprintf(stdout, "default chain: %s\n", current.DefaultChain)
	return exitOK
}
