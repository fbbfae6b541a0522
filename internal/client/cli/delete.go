package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/securedrop/internal/client/api"
	"github.com/dmitrijs2005/securedrop/internal/sharelink"
	"github.com/spf13/cobra"
)

func newDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <link|id>",
		Short: "Destroy a one-time share before it is downloaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.delete(cmd.Context(), args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *App) delete(ctx context.Context, target string, yes bool) error {
	client, id := a.client, target
	if strings.Contains(target, "://") {
		link, err := sharelink.Parse(target)
		if err != nil {
			return err
		}
		client, id = api.New(link.Base, a.http), link.ID
	}

	if !yes {
		ok, err := Confirm(a.stdin, "Delete share "+id+"?", a.stderr)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.stderr, "aborted")
			return nil
		}
	}

	outcome, err := client.Delete(ctx, id)
	if err != nil {
		return err
	}

	switch outcome {
	case "kept":
		fmt.Fprintln(a.stdout, "kept: reusable shares stay available until they expire")
	case "already_deleted":
		fmt.Fprintln(a.stdout, "already deleted")
	default:
		fmt.Fprintln(a.stdout, outcome)
	}
	return nil
}
