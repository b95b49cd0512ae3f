package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newResolveCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <group name...>",
		Short: "Print the chat id the fallback bot resolves for a group name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := o.open()
			if err != nil {
				return err
			}
			defer closeApp(a)

			r := a.Resolver()
			if r == nil {
				return errors.New("fallback.bot_token is not configured")
			}
			id, err := r.Resolve(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
