package cli

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/client/api"
	"github.com/dmitrijs2005/securedrop/internal/client/config"
	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/spf13/cobra"
)

// App carries what every command needs once flags are parsed.
type App struct {
	config *config.Config
	http   *http.Client
	client *api.Client
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCmd builds the securedrop command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	var (
		configPath string
		serverURL  string
		timeout    time.Duration
	)

	root := &cobra.Command{
		Use:           "securedrop",
		Short:         "Share files end-to-end encrypted through expiring links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server") {
				cfg.ServerURL = serverURL
			}
			if cmd.Flags().Changed("timeout") {
				cfg.RequestTimeout = timeout
			}

			app.config = cfg
			app.http = &http.Client{Timeout: cfg.RequestTimeout}
			app.client = api.New(cfg.ServerURL, app.http)
			app.stdin = bufio.NewReader(cmd.InOrStdin())
			app.stdout = cmd.OutOrStdout()
			app.stderr = cmd.ErrOrStderr()
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file")
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "base URL of the securedrop server")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for each request")

	root.AddCommand(
		newUploadCmd(app),
		newDownloadCmd(app),
		newDeleteCmd(app),
	)
	return root
}

// ExitCode maps an error to the process exit status. Decryption failures
// get their own code so scripts can tell a bad link from a network fault.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, common.ErrDecryptionFailed):
		return 3
	case errors.Is(err, common.ErrNotFound):
		return 2
	default:
		return 1
	}
}
