package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/securedrop/internal/client/api"
	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/cryptox"
	"github.com/dmitrijs2005/securedrop/internal/sharelink"
	"github.com/spf13/cobra"
)

func newUploadCmd(app *App) *cobra.Command {
	var (
		expires int
		once    bool
		name    string
	)

	cmd := &cobra.Command{
		Use:   "upload <file|->",
		Short: "Encrypt a file locally and print its share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("expires") {
				expires = app.config.DefaultExpiresInHours
			}
			return app.upload(cmd.Context(), args[0], name, expires, once)
		},
	}

	cmd.Flags().IntVarP(&expires, "expires", "e", 24, "hours until the share expires (1, 24, 168 or 720)")
	cmd.Flags().BoolVar(&once, "once", false, "destroy the share after its first download")
	cmd.Flags().StringVar(&name, "name", "", "filename shown to the recipient (default: base name of the file)")
	return cmd
}

func (a *App) upload(ctx context.Context, path, name string, expires int, once bool) error {
	plaintext, err := a.readInput(path)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	if name == "" && path != "-" {
		name = filepath.Base(path)
	}

	sealed, err := cryptox.Seal(plaintext)
	if err != nil {
		return err
	}
	defer sealed.Wipe()

	id, err := a.client.Upload(ctx, api.UploadRequest{
		Ciphertext:        sealed.Ciphertext,
		Nonce:             sealed.Nonce,
		Filename:          name,
		ExpiresInHours:    expires,
		DestroyOnDownload: once,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, sharelink.Build(a.client.BaseURL(), id, sealed.Key))
	if once {
		fmt.Fprintln(a.stderr, "one-time link: it stops working after the first download")
	}
	fmt.Fprintf(a.stderr, "expires in %d hours; anyone with the full link can decrypt the file\n", expires)
	return nil
}

func (a *App) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
