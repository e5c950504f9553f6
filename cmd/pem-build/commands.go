package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/pem/pkg/pem/analytics"
	"github.com/cognicore/pem/pkg/pem/config"
	"github.com/cognicore/pem/pkg/pem/export"
	"github.com/cognicore/pem/pkg/pem/internalerr"
)

// defaultTopMentions is how many mentions the stats command lists.
const defaultTopMentions = 20

func wikiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wiki",
		Short: "Compute the Wikipedia and CrossWiki prior and export it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.build(cmd.Context(), cmd.OutOrStdout(), false)
		},
	}
}

func customCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "custom",
		Short: "Compute the wiki prior, merge the secondary corpus and export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.build(cmd.Context(), cmd.OutOrStdout(), true)
		},
	}
}

func runCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build, merge, export and record the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAll(cmd.Context(), cmd)
		},
	}
}

func lookupCommand(a *app) *cobra.Command {
	var lower bool
	cmd := &cobra.Command{
		Use:   "lookup <mention>",
		Short: "Print the stored candidates of a mention",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.lookup(cmd.Context(), cmd.OutOrStdout(), args[0], lower)
		},
	}
	cmd.Flags().BoolVar(&lower, "lower", false, "Match the mention case-insensitively")
	return cmd
}

func statsCommand(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the exported prior table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stats(cmd.Context(), cmd.OutOrStdout(), top)
		},
	}
	cmd.Flags().IntVar(&top, "top", defaultTopMentions, "Number of most frequent mentions to list")
	return cmd
}

// build computes the wiki prior, optionally merges the secondary corpus
// and loads the table into the sink.
func (a *app) build(ctx context.Context, out io.Writer, withCustom bool) (err error) {
	b, cleanup, err := a.openBuilder(ctx, withCustom)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cleanup()) }()

	start := time.Now()
	if _, err := b.ComputeWiki(ctx); err != nil {
		return err
	}
	if withCustom && a.cfg.Custom.Source != config.SourceNone {
		if _, err := b.ComputeCustom(ctx); err != nil {
			return err
		}
	}
	n, err := b.Store(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("Prior table exported",
		zap.String("rows", humanize.Comma(int64(n))),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(out, "exported %s mentions to %s\n", humanize.Comma(int64(n)), a.cfg.Export.Table)
	return nil
}

// runAll is the full build recorded as a run.
func (a *app) runAll(ctx context.Context, cmd *cobra.Command) (err error) {
	b, cleanup, err := a.openBuilder(ctx, true)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, cleanup()) }()

	run, err := b.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s mentions (source %s) in %s\n",
		run.ID, humanize.Comma(int64(run.Mentions)), run.Source,
		run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	return nil
}

func (a *app) lookup(ctx context.Context, out io.Writer, mention string, lower bool) (err error) {
	sink, err := a.openSink(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sink.Close()) }()

	var entries []export.Entry
	if lower {
		entries, err = sink.LookupLower(ctx, mention)
		if err != nil {
			return err
		}
	} else {
		e, ok, err := sink.Lookup(ctx, mention)
		if err != nil {
			return err
		}
		if ok {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: mention %q", internalerr.ErrNotFound, mention)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		d, err := e.Distribution()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\tfreq %s\t%d candidates\n", e.Word, humanize.Comma(e.Freq), len(d))
		for _, c := range d {
			fmt.Fprintf(w, "\t%s\t%.3f\n", c.Entity, c.Prob)
		}
	}
	return w.Flush()
}

func (a *app) stats(ctx context.Context, out io.Writer, top int) (err error) {
	sink, err := a.openSink(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sink.Close()) }()

	analyzer := analytics.NewAnalyzer()
	err = sink.Each(ctx, a.cfg.Export.BatchSize, func(e export.Entry) error {
		d, err := e.Distribution()
		if err != nil {
			return err
		}
		analyzer.Process(e.Word, d, e.Freq)
		return nil
	})
	if err != nil {
		return fmt.Errorf("read exported table: %w", err)
	}
	writeStats(out, analyzer.Snapshot(), top)
	return nil
}

// writeStats prints a summary in the layout of the build log.
func writeStats(out io.Writer, s analytics.Stats, top int) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "mentions\t%s\n", humanize.Comma(s.Mentions))
	fmt.Fprintf(w, "candidates\t%s\n", humanize.Comma(s.Candidates))
	fmt.Fprintf(w, "ambiguous\t%s\n", humanize.Comma(s.Ambiguous))
	fmt.Fprintf(w, "mean candidates\t%.2f\n", s.MeanCandidates)
	fmt.Fprintf(w, "mean entropy\t%.3f nats\n", s.MeanEntropy)
	fmt.Fprintln(w, "\ncandidates per mention")
	for _, b := range s.Histogram {
		fmt.Fprintf(w, "  %s\t%s\n", b.Label, humanize.Comma(b.Mentions))
	}
	if mentions := s.TopMentions(top); len(mentions) > 0 {
		fmt.Fprintln(w, "\nmost frequent mentions")
		for _, m := range mentions {
			fmt.Fprintf(w, "  %s\t%s\t%d\n", m.Mention, humanize.Comma(m.Freq), m.Candidates)
		}
	}
	w.Flush()
}
