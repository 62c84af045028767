package cli

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every frame's content is present and intact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.Store.Verify(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			red := color.New(color.FgRed)
			yellow := color.New(color.FgYellow)
			for _, p := range report.Problems {
				yellow.Fprintf(out, "%s ", p.Frame.ShortID())
				fmt.Fprintf(out, "%s ", p.Frame.Timestamp().Format(time.RFC3339))
				red.Fprintf(out, "%v\n", p.Err)
			}
			fmt.Fprintf(out, "%d frames, %d blobs checked\n", report.FramesChecked, report.BlobsChecked)

			if !report.OK() {
				return fmt.Errorf("%d inconsistent frames", len(report.Problems))
			}
			color.New(color.FgGreen).Fprintln(out, "ok")
			return nil
		},
	}
}

func newGCCmd(g *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete content no frame refers to",
		Long: `Remove blobs that are not referenced by any frame, such as those left
behind by an interrupted put. Writers are blocked while it runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Store.GC(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			verb := "Deleted"
			if result.DryRun {
				verb = "Would delete"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d of %d blobs (%d referenced)\n",
				verb, result.BlobsDeleted, result.BlobsScanned, result.ReferencedBlobs)
			if result.TempFiles > 0 {
				fmt.Fprintf(out, "%s %d leftover temp files\n", verb, result.TempFiles)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be deleted")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.initContext(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Store:       %s\n", stats.Root)
			fmt.Fprintf(out, "Index:       %s\n", stats.Backend)
			fmt.Fprintf(out, "Algorithm:   %s\n", stats.Algorithm)
			fmt.Fprintf(out, "Compression: %s\n", stats.Compression)
			fmt.Fprintf(out, "Frames:      %d\n", stats.Frames)
			fmt.Fprintf(out, "Blobs:       %d (%s)\n", stats.Blobs, units.HumanSize(float64(stats.BlobBytes)))
			return nil
		},
	}
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration as TOML. With --save it is also written
to the configuration file, so flag overrides become the new defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
			if !save {
				return nil
			}
			if err := cfg.Save(g.configPath); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "Saved %s\n", g.configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Write the effective configuration to the config file")
	return cmd
}
