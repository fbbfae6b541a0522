package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/securedrop/internal/client/api"
	"github.com/dmitrijs2005/securedrop/internal/common"
	"github.com/dmitrijs2005/securedrop/internal/cryptox"
	"github.com/dmitrijs2005/securedrop/internal/filex"
	"github.com/dmitrijs2005/securedrop/internal/netx"
	"github.com/dmitrijs2005/securedrop/internal/sharelink"
	"github.com/spf13/cobra"
)

const fallbackFilename = "download.bin"

// ErrAlreadyConsumed is returned when another recipient consumed a
// one-time share between our retrieval and our consume call.
var ErrAlreadyConsumed = fmt.Errorf("%w: one-time share was already downloaded", common.ErrNotFound)

func newDownloadCmd(app *App) *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "download <link>",
		Short: "Fetch and decrypt a shared file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.download(cmd.Context(), args[0], output, force)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `output path, "-" for stdout (default: the shared filename)`)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files and allow writing to a terminal")
	return cmd
}

func (a *App) download(ctx context.Context, raw, output string, force bool) error {
	link, err := sharelink.Parse(raw)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(link.Key)

	// the link names its own server
	client := api.New(link.Base, a.http)

	info, ciphertext, err := a.fetch(ctx, client, link.ID)
	if err != nil {
		return err
	}

	// never retried: the same inputs fail the same way
	plaintext, err := cryptox.Open(ciphertext, link.Key, info.Nonce)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	if output == "-" {
		if writerIsTerminal(a.stdout) && !force {
			return fmt.Errorf("%w: refusing to write file contents to a terminal, use -o FILE or --force", common.ErrValidation)
		}
		if err := a.consume(ctx, client, info); err != nil {
			return err
		}
		_, err := a.stdout.Write(plaintext)
		return err
	}

	dest := output
	if dest == "" {
		dest = localFilename(info.Filename)
	}
	if err := a.writeFile(dest, plaintext, force, func() error { return a.consume(ctx, client, info) }); err != nil {
		return err
	}

	fmt.Fprintf(a.stderr, "saved %s (%d bytes)\n", dest, len(plaintext))
	return nil
}

// fetch resolves the share and downloads its ciphertext. An expired
// capability is renewed once.
func (a *App) fetch(ctx context.Context, client *api.Client, id string) (*api.RetrievalInfo, []byte, error) {
	info, err := client.Retrieve(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	limit := a.config.MaxDownloadBytes
	ciphertext, err := netx.FetchCapability(ctx, a.http, info.DownloadURL, limit)
	if errors.Is(err, common.ErrCapabilityExpired) {
		if info, err = client.Retrieve(ctx, id); err != nil {
			return nil, nil, err
		}
		ciphertext, err = netx.FetchCapability(ctx, a.http, info.DownloadURL, limit)
	}
	if err != nil {
		return nil, nil, err
	}
	return info, ciphertext, nil
}

func (a *App) consume(ctx context.Context, client *api.Client, info *api.RetrievalInfo) error {
	if !info.DestroyOnDownload {
		return nil
	}
	if err := client.Consume(ctx, info.ID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return ErrAlreadyConsumed
		}
		return err
	}
	return nil
}

// writeFile stages data next to dest and runs commit before moving it
// into place. Nothing is left behind when commit fails.
func (a *App) writeFile(dest string, data []byte, force bool, commit func() error) error {
	if _, err := os.Stat(dest); err == nil && !force {
		return fmt.Errorf("%w: %s already exists, use --force to overwrite", common.ErrValidation, dest)
	}
	return filex.WriteAtomic(dest, bytes.NewReader(data), func(int64) error { return commit() })
}

// localFilename reduces a sender-chosen name to a plain file name in the
// current directory.
func localFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/", "":
		return fallbackFilename
	}
	return name
}
