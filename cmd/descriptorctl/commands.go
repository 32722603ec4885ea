package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/creastat/descriptorstore/schema"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	red   = color.New(color.FgRed)
	green = color.New(color.FgGreen)
	cyan  = color.New(color.FgCyan)
	bold  = color.New(color.Bold)
	dim   = color.New(color.Faint)
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured schemas and whether they are initialized",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Shutdown()

		out := cmd.OutOrStdout()
		for _, name := range reg.List() {
			s, _ := reg.Get(name)
			state := green.Sprint("initialized")
			if !s.IsInitialized(cmd.Context()) {
				state = red.Sprint("not initialized")
			}
			fmt.Fprintf(out, "%s  %s  %s\n", bold.Sprint(name), dim.Sprint(s.Connection().Description()), state)
		}
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [schema...]",
	Short: "Show the fields and descriptor layouts of schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Shutdown()

		schemas, err := selected(reg, args)
		if err != nil {
			return err
		}
		for _, s := range schemas {
			describe(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

func describe(w io.Writer, s *schema.Schema) {
	bold.Fprintf(w, "%s", s.Name())
	fmt.Fprintf(w, " (%s, %s)\n", s.Connection().Provider(), dim.Sprint(s.Connection().Description()))
	for _, f := range s.Fields() {
		proto, err := f.Prototype()
		if err != nil {
			fmt.Fprintf(w, "  %-20s %-20s %s\n", cyan.Sprint(f.Name()), f.Analyser().Name(), red.Sprint(err))
			continue
		}
		attrs := make([]string, len(proto.Layout()))
		for i, a := range proto.Layout() {
			attrs[i] = a.Name + ":" + a.Type.String()
			if a.Nullable {
				attrs[i] += "?"
			}
		}
		fmt.Fprintf(w, "  %-20s %-20s %s\n", cyan.Sprint(f.Name()), f.Analyser().Name(), strings.Join(attrs, ", "))
	}
}

var initCmd = &cobra.Command{
	Use:   "init [schema...]",
	Short: "Create the backing entities of schemas",
	Long: `Create the retrievable, relationship and descriptor entities of the given
schemas, or of every configured schema. Existing entities are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Shutdown()

		schemas, err := selected(reg, args)
		if err != nil {
			return err
		}
		g, ctx := errgroup.WithContext(cmd.Context())
		for _, s := range schemas {
			g.Go(func() error {
				if err := s.Initialize(ctx); err != nil {
					return fmt.Errorf("schema %q: %w", s.Name(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, s := range schemas {
			green.Fprintf(cmd.OutOrStdout(), "✓ %s initialized\n", s.Name())
		}
		return nil
	},
}

var truncateYes bool

var truncateCmd = &cobra.Command{
	Use:   "truncate <schema>",
	Short: "Remove every retrievable, relationship and descriptor of a schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !truncateYes {
			return fmt.Errorf("refusing to truncate %q without --yes", args[0])
		}
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Shutdown()

		s, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		if err := s.Truncate(cmd.Context()); err != nil {
			return err
		}
		green.Fprintf(cmd.OutOrStdout(), "✓ %s truncated\n", s.Name())
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count [schema...]",
	Short: "Count the retrievables and descriptors of schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Shutdown()

		schemas, err := selected(reg, args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		for _, s := range schemas {
			bold.Fprintln(out, s.Name())
			fmt.Fprintf(out, "  %-20s %d\n", "retrievables", s.Connection().RetrievableReader().Count(ctx))
			for _, f := range s.Fields() {
				fmt.Fprintf(out, "  %-20s %d\n", f.Name(), f.Reader().Count(ctx))
			}
		}
		return nil
	},
}

func init() {
	truncateCmd.Flags().BoolVarP(&truncateYes, "yes", "y", false, "confirm truncation")
}
