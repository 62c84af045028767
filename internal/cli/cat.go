package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/kilupskalvis/xs/internal/store"
	"github.com/spf13/cobra"
)

func newCatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <hash>...",
		Short: "Write stored content to standard output",
		Long: `Resolve each integrity hash against the store and write the content to
standard output. Missing or corrupt content is reported on standard error and
the remaining hashes are still written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Every argument is parsed before the store is touched.
			hashes := make([]integrity.Integrity, len(args))
			for i, arg := range args {
				h, err := integrity.Parse(arg)
				if err != nil {
					return err
				}
				hashes[i] = h
			}

			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			red := color.New(color.FgRed)
			out := cmd.OutOrStdout()
			failed := 0
			for _, h := range hashes {
				data, err := c.Store.CatHash(cmd.Context(), h)
				switch {
				case err == nil:
					if _, err := out.Write(data); err != nil {
						return err
					}
				case errors.Is(err, store.ErrNotFound):
					red.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", h)
					failed++
				case errors.Is(err, store.ErrIntegrity):
					red.Fprintf(cmd.ErrOrStderr(), "%s: content is corrupt\n", h)
					failed++
				default:
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d hashes could not be read", failed, len(hashes))
			}
			return nil
		},
	}
}
