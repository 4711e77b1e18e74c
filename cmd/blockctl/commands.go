package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/change"
	"github.com/gyaneshwarpardhi/blockgraph/internal/config"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
	"github.com/gyaneshwarpardhi/blockgraph/internal/engine"
	"github.com/gyaneshwarpardhi/blockgraph/internal/producer"
	"github.com/gyaneshwarpardhi/blockgraph/internal/registry"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "blockctl",
		Short:        "Inspect block dependency graphs and run cascades",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/scaffold.yaml", "Path to product YAML file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log cascade progress to stderr")

	root.AddCommand(
		newValidateCmd(opts),
		newPlanCmd(opts),
		newRunCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.ProductConfig, error) {
	data, err := os.ReadFile(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", o.configPath, err)
	}
	return config.Parse(data)
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// buildSchema validates cfg against the stock producers and builds its schema.
func buildSchema(cfg *config.ProductConfig, reg *registry.Memory) (*dag.Schema, error) {
	catalog := producer.Default(reg)
	if err := config.Validate(cfg, catalog.Names()); err != nil {
		return nil, err
	}
	return dag.Build(cfg, catalog)
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a product file and print its blocks in dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			schema, err := buildSchema(cfg, registry.NewMemory())
			if err != nil {
				return err
			}
			ordered, err := dag.TopologicalSort(schema.IDs(), func(id block.ID) []block.ID {
				e, _ := schema.Entry(id)
				return e.DependsOn
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %d blocks\n", cfg.Product, cfg.Version, schema.Len())
			for _, id := range ordered {
				e, _ := schema.Entry(id)
				fmt.Fprintf(out, "  %s", id)
				if len(e.DependsOn) > 0 {
					fmt.Fprintf(out, " <- %s", strings.Join(block.Strings(e.DependsOn), ", "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var present, changed string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the order a cascade would re-execute blocks in",
		Long: "Builds the graph over the blocks named by --present (all declared " +
			"blocks when omitted) and prints the descendants of --changed in " +
			"execution order. Nothing is executed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			reg := registry.NewMemory()
			schema, err := buildSchema(cfg, reg)
			if err != nil {
				return err
			}
			ids := block.ParseList(present)
			if len(ids) == 0 {
				ids = schema.IDs()
			}
			for _, id := range ids {
				if !schema.Has(id) {
					return fmt.Errorf("%w: %s", engine.ErrUnknownBlock, id)
				}
				reg.AddBlock(id, nil)
			}
			g := dag.New(schema, reg, dag.WithLogger(opts.logger(cmd)))
			g.InvalidateGraph()
			for _, id := range g.Plan(block.ParseList(changed)) {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&present, "present", "", "Comma separated blocks that exist")
	cmd.Flags().StringVar(&changed, "changed", "", "Comma separated blocks that changed")
	_ = cmd.MarkFlagRequired("changed")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var changed, skip string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed a session from the product file and run one cascade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			sess, err := engine.FromConfig(ctx, cfg, opts.logger(cmd))
			if err != nil {
				return err
			}
			defer sess.Shutdown()

			cs := change.New("cli", block.ParseList(changed), block.ParseList(skip)...)
			rep, err := sess.Notify(ctx, cs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if !rep.OK {
				return fmt.Errorf("cascade aborted at %s (producer %d, %s)", rep.Failed, rep.FailedProducer, rep.FailedKind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&changed, "changed", "", "Comma separated blocks that changed")
	cmd.Flags().StringVar(&skip, "skip", "", "Comma separated blocks to pass over")
	_ = cmd.MarkFlagRequired("changed")
	return cmd
}
