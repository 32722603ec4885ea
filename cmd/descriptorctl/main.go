// Command descriptorctl manages the schemas of a descriptor store
// configuration: it lists, describes, initializes, truncates and counts them.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/creastat/descriptorstore/logging"
	"github.com/creastat/descriptorstore/metrics"
	"github.com/creastat/descriptorstore/schema"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	verbose     bool
	jsonLog     bool
	noColor     bool
	showMetrics bool

	promRegistry = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "descriptorctl",
	Short: "Manage descriptor store schemas",
	Long: `descriptorctl opens the schemas listed in a YAML configuration file and
runs maintenance operations against their storage backends.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		color.NoColor = color.NoColor || noColor
		return metrics.Register(promRegistry)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !showMetrics {
			return nil
		}
		return printMetrics(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "descriptorstore.yaml", "schema configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "log as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print backend operation metrics on exit")

	rootCmd.AddCommand(listCmd, describeCmd, initCmd, truncateCmd, countCmd)
}

func newLogger() *logging.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if jsonLog {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.NewText(os.Stderr, level)
}

// openRegistry loads every schema of the configuration file.
func openRegistry() (*schema.Registry, error) {
	cfg, err := schema.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	reg := schema.NewRegistry(schema.WithLogger(newLogger()))
	if err := reg.LoadAll(cfg); err != nil {
		reg.Shutdown()
		return nil, err
	}
	return reg, nil
}

// selected returns the named schemas, or all of them when names is empty.
func selected(reg *schema.Registry, names []string) ([]*schema.Schema, error) {
	if len(names) == 0 {
		names = reg.List()
	}
	out := make([]*schema.Schema, 0, len(names))
	for _, n := range names {
		s, err := reg.Get(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		red.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printMetrics(w io.Writer) error {
	families, err := promRegistry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	bold.Fprintln(w, "\nBackend operations")
	for _, mf := range families {
		if mf.GetName() != "descriptorstore_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			c := green
			if labels["outcome"] == metrics.OutcomeFailure {
				c = red
			}
			c.Fprintf(w, "  %-10s %-22s %-8s %6.0f\n", labels["backend"], labels["operation"], labels["outcome"], m.GetCounter().GetValue())
		}
	}
	return nil
}
