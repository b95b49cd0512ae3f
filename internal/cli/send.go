package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"notifyrelay/internal/notifier"
	kit "notifyrelay/internal/transport"
)

type sendFunc func(s *notifier.Service, ctx context.Context, text string, amend kit.Amendment, emergency string) (notifier.Result, error)

type sendFlags struct {
	amend     map[string]string
	emergency string
}

func (f *sendFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&f.amend, "amend", nil, "metadata attached to the first page (k=v, repeatable)")
	cmd.Flags().StringVar(&f.emergency, "emergency", "", "emergency annotation shown on the first page")
}

func newSendCommand(o *rootOptions) *cobra.Command {
	var (
		f         sendFlags
		threshold bool
	)
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a message to the configured receiver",
		Long:  "Send a message. Text comes from the arguments, or from stdin when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fn := (*notifier.Service).SendMessage
			if threshold {
				fn = (*notifier.Service).SendThreshold
			}
			return runSend(cmd, o, &f, args, fn)
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&threshold, "threshold", false, "use the server's threshold-aware endpoint")
	return cmd
}

func newAlertCommand(o *rootOptions) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "alert [text...]",
		Short: "Send an alert, suppressing repeats within alerts.delay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, o, &f, args, (*notifier.Service).SendAlert)
		},
	}
	f.bind(cmd)
	return cmd
}

func newGatedCommand(o *rootOptions) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "gated [template...]",
		Short: "Count a template occurrence and send once its threshold is reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, o, &f, args, (*notifier.Service).SendGated)
		},
	}
	f.bind(cmd)
	return cmd
}

func runSend(cmd *cobra.Command, o *rootOptions, f *sendFlags, args []string, fn sendFunc) error {
	text, err := messageText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	_, a, err := o.open()
	if err != nil {
		return err
	}
	defer closeApp(a)

	res, err := fn(a.Service(), cmd.Context(), text, toAmendment(f.amend), f.emergency)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res notifier.Result) {
	if res.Suppressed {
		fmt.Fprintln(w, "suppressed")
		return
	}
	fmt.Fprintf(w, "pages=%d status=%d", res.Pages, res.Last.StatusCode)
	if res.Last.Queued != nil {
		fmt.Fprintf(w, " queued=%t", *res.Last.Queued)
	}
	if len(res.Escalated) > 0 {
		fmt.Fprintf(w, " escalated=%v", res.Escalated)
	}
	fmt.Fprintln(w)
}
