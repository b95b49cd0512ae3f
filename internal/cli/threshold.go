package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"notifyrelay/internal/config"
	kit "notifyrelay/internal/transport"
)

// parseSetting reads <message> <count> <window>. window is a Go duration or
// a plain number of seconds.
func parseSetting(args []string) (kit.ThresholdSetting, error) {
	count, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return kit.ThresholdSetting{}, fmt.Errorf("invalid count %q", args[1])
	}
	window, err := config.ParseDurationField("window", args[2])
	if err != nil {
		return kit.ThresholdSetting{}, fmt.Errorf("invalid window %q", args[2])
	}
	return kit.ThresholdSetting{Message: args[0], Count: count, Window: window}, nil
}

func newSetThresholdCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-threshold <message> <count> <window>",
		Short: "Configure a sending threshold on the delivery server",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseSetting(args)
			if err != nil {
				return err
			}
			_, a, err := o.open()
			if err != nil {
				return err
			}
			defer closeApp(a)

			code, err := a.Service().SetThreshold(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%d\n", code)
			return nil
		},
	}
}

func newGateCommand(o *rootOptions) *cobra.Command {
	gate := &cobra.Command{
		Use:   "gate",
		Short: "Manage local threshold gates",
	}
	gate.AddCommand(&cobra.Command{
		Use:   "configure <message> <count> <window>",
		Short: "Store a threshold setting used by the gated command",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseSetting(args)
			if err != nil {
				return err
			}
			_, a, err := o.open()
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Service().ConfigureGate(cmd.Context(), s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gate configured: count=%d window=%s\n", s.Count, s.Window)
			return nil
		},
	})
	return gate
}
