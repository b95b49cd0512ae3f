// Package cli implements the notifyrelay command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"notifyrelay/internal/app"
	"notifyrelay/internal/config"
	kit "notifyrelay/internal/transport"
)

// Version is set at build time via ldflags.
var Version = "dev"

const closeTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
	dryRun     bool
	logLevel   string
}

func (o *rootOptions) appOptions() app.Options {
	return app.Options{LogLevel: o.logLevel, DryRun: o.dryRun}
}

// open loads the config file and wires the application.
func (o *rootOptions) open() (*config.ConfigManager, *app.App, error) {
	m := config.NewConfigManager(o.configPath)
	cfg, err := m.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	a, err := app.New(cfg, o.appOptions())
	if err != nil {
		return nil, nil, err
	}
	return m, a, nil
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = a.Close(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "notifyrelay",
		Short: "Best-effort notifications with retry, fallback and rate gates",
		Long: `notifyrelay delivers text notifications to a group through a queueing
delivery server. Long messages are split into pages, each page is retried,
and pages the server keeps rejecting are sent through a Telegram bot instead.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "./config.json", "path to config (json or yaml)")
	root.PersistentFlags().BoolVar(&o.dryRun, "dry-run", false, "log pages instead of sending them")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newSendCommand(o),
		newAlertCommand(o),
		newGatedCommand(o),
		newSetThresholdCommand(o),
		newGateCommand(o),
		newResolveCommand(o),
		newPipeCommand(o),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// messageText joins args, or reads stdin when there are none (or a single "-").
func messageText(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func toAmendment(m map[string]string) kit.Amendment {
	if len(m) == 0 {
		return nil
	}
	out := make(kit.Amendment, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
