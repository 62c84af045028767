package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilupskalvis/xs/internal/ingest"
	"github.com/kilupskalvis/xs/internal/models"
	"github.com/kilupskalvis/xs/internal/store"
	"github.com/spf13/cobra"
)

func newPutCmd(g *globalFlags) *cobra.Command {
	var (
		follow bool
		mode   string
		topic  string
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store standard input as frames",
		Long: `Read standard input and store it. By default the whole input becomes one
frame. With --follow each line becomes its own frame as soon as it is read,
so a stream can be piped in indefinitely. Every stored frame is printed as a
JSON line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := resolveMode(follow, mode, cmd.Flags().Changed("mode"))
			if err != nil {
				return err
			}

			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			var putOpts []store.PutOption
			if topic != "" {
				putOpts = append(putOpts, store.WithTopic(topic))
			}
			put := func(ctx context.Context, content []byte) (*models.Frame, error) {
				return c.Store.Put(ctx, content, putOpts...)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			emit := func(f *models.Frame) error {
				return enc.Encode(f)
			}

			n, err := ingest.Run(cmd.Context(), cmd.InOrStdin(), m, put, emit)
			if errors.Is(err, context.Canceled) {
				c.Logger.Info().Int("frames", n).Msg("interrupted")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Store each input line as its own frame")
	cmd.Flags().StringVar(&mode, "mode", string(ingest.ModeWhole), "Ingestion mode: whole, lines or bytes")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Label stored frames with a topic")
	return cmd
}

// resolveMode combines --follow and --mode. --follow means lines unless an
// explicit --mode says otherwise.
func resolveMode(follow bool, mode string, modeSet bool) (ingest.Mode, error) {
	m, err := ingest.ParseMode(mode)
	if err != nil {
		return "", err
	}
	if !follow || modeSet {
		if follow && m == ingest.ModeWhole {
			return "", fmt.Errorf("--follow cannot be combined with --mode %s", m)
		}
		return m, nil
	}
	return ingest.ModeLines, nil
}
