package cli

import (
	"encoding/json"
	"fmt"

	"github.com/kilupskalvis/xs/internal/store"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		after string
		limit int
		topic string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List frames oldest first",
		Long:  `Print every frame as a JSON line, oldest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := store.ListOptions{Limit: limit, Topic: topic}
			if after != "" {
				id, err := ulid.ParseStrict(after)
				if err != nil {
					return fmt.Errorf("invalid --after id %q: %w", after, err)
				}
				opts.After = &id
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for f, err := range c.Store.List(cmd.Context(), opts) {
				if err != nil {
					return err
				}
				if err := enc.Encode(f); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "Only frames after this id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit the number of frames to show")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Only frames with this topic")
	return cmd
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ulid.ParseStrict(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := c.Store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(f)
		},
	}
}
