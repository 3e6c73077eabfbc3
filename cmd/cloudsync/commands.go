package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/cloudsync/internal/app"
	"github.com/dokzlo13/cloudsync/internal/diff"
	"github.com/dokzlo13/cloudsync/internal/ledger"
	"github.com/dokzlo13/cloudsync/internal/reconcile"
	"github.com/dokzlo13/cloudsync/internal/resources"
)

func resourceKinds() []string {
	return resources.Kinds()
}

// open builds the application for one command. The caller closes it.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.stdout, c.status)
}

func (c *cli) kindCommand(kind string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind,
		Short: fmt.Sprintf("Diff or sync %s resources", kind),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "diff [name]",
			Short: fmt.Sprintf("Show differences between declared and remote %s resources", kind),
			Args:  cobra.MaximumNArgs(1),
			RunE: c.withRunner(kind, func(ctx context.Context, r reconcile.Runner, name string) error {
				return r.RunDiff(ctx, name)
			}),
		},
		&cobra.Command{
			Use:   "sync [name]",
			Short: fmt.Sprintf("Create and update remote %s resources to match their declarations", kind),
			Args:  cobra.MaximumNArgs(1),
			RunE: c.withRunner(kind, func(ctx context.Context, r reconcile.Runner, name string) error {
				return r.RunSync(ctx, name)
			}),
		},
	)
	return cmd
}

// withRunner adapts a runner operation to a cobra handler. The optional
// argument is the resource name.
func (c *cli) withRunner(kind string, fn func(ctx context.Context, r reconcile.Runner, name string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Runner(kind)
		if err != nil {
			return err
		}
		var name string
		if len(args) > 0 {
			name = args[0]
		}
		return fn(ctx, r, name)
	}
}

func (c *cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Periodically diff every kind until interrupted",
		Long: `Watch diffs every resource kind on reconciler.watch_interval and logs drift.
It never changes remote resources. Send SIGHUP for an immediate check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Watch(cmd.Context())
		},
	}
}

func (c *cli) historyCommand() *cobra.Command {
	var (
		limit int
		kind  string
		name  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync actions from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (kind == "") != (name == "") {
				return fmt.Errorf("--kind and --name must be used together")
			}

			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []*ledger.Entry
			if kind != "" {
				entries, err = a.Ledger().ByResource(ctx, kind, name, limit)
			} else {
				entries, err = a.Ledger().Recent(ctx, limit)
			}
			if err != nil {
				return err
			}

			for _, e := range entries {
				printEntry(a.Printer(), e)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.Flags().StringVar(&kind, "kind", "", "only entries for this resource kind")
	cmd.Flags().StringVar(&name, "name", "", "only entries for this resource name")
	return cmd
}

func printEntry(p *reconcile.Printer, e *ledger.Entry) {
	line := fmt.Sprintf("%s  %-9s %s %s  run=%s",
		e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Kind, e.Name, shortID(e.RunID))
	if e.Error != "" {
		line += "  error: " + e.Error
	}
	p.Line("%s", line)
	for _, c := range e.Changes {
		p.Line("%s", diff.Indent(c, "\t"))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (c *cli) kindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List resource kinds",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range resourceKinds() {
				fmt.Fprintln(c.stdout, k)
			}
		},
	}
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "cloudsync %s\n", version)
			fmt.Fprintf(c.stdout, "  commit: %s\n", commit)
			fmt.Fprintf(c.stdout, "  built:  %s\n", date)
		},
	}
}
