package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"notifyrelay/internal/notifier"
	"notifyrelay/internal/runtime/supervisor"
	logx "notifyrelay/pkg/logx"
)

const maxLineBytes = 1 << 20

// A blocked stdin read cannot be interrupted, so shutdown does not wait on it for long.
const stopTimeout = 2 * time.Second

var pipeModes = map[string]sendFunc{
	"alert":     (*notifier.Service).SendAlert,
	"message":   (*notifier.Service).SendMessage,
	"threshold": (*notifier.Service).SendThreshold,
	"gated":     (*notifier.Service).SendGated,
}

func newPipeCommand(o *rootOptions) *cobra.Command {
	var (
		mode  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Send every stdin line until EOF, reloading the config file on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fn, ok := pipeModes[strings.ToLower(strings.TrimSpace(mode))]
			if !ok {
				return fmt.Errorf("unknown mode %q (alert, message, threshold, gated)", mode)
			}
			return runPipe(cmd, o, fn, watch)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "alert", "send mode: alert, message, threshold or gated")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func runPipe(cmd *cobra.Command, o *rootOptions, fn sendFunc, watch bool) error {
	m, a, err := o.open()
	if err != nil {
		return err
	}
	defer closeApp(a)

	log := a.Logger().With(logx.String("comp", "pipe"))
	if err := a.Start(); err != nil {
		return err
	}

	sup := supervisor.New(cmd.Context(), supervisor.WithLogger(log))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = sup.Stop(sctx)
	}()
	ctx := sup.Context()

	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)
	if watch {
		m.SetLogger(a.Logger())
		sup.GoRestart("config-watch", m.Watch, time.Second, 30*time.Second)
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	sup.Go("stdin", func(ctx context.Context) error {
		scanLines(ctx, cmd.InOrStdin(), lines, scanErr)
		return nil
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready")
	}
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	var sent, failed int
	defer func() {
		log.Info("pipe finished", logx.Int("sent", sent), logx.Int("failed", failed))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := a.Reload(cfg, o.appOptions()); err != nil {
				log.Warn("config reload failed; keeping previous pipeline", logx.Err(err))
			}
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		case line := <-lines:
			res, err := fn(a.Service(), ctx, line, nil, "")
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed++
				log.Warn("line not sent", logx.Err(err))
				continue
			}
			sent++
			printResult(cmd.OutOrStdout(), res)
		}
	}
}

// scanLines sends non-blank lines until EOF, then reports the scan error (nil on EOF).
func scanLines(ctx context.Context, r io.Reader, out chan<- string, done chan<- error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
	done <- sc.Err()
}
