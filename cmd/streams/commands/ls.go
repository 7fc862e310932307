package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/filter"
	"github.com/dyluth/streams/internal/outline"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/streams"
	"github.com/dyluth/streams/internal/timespec"
)

func newLsCmd(opts *globalOptions) *cobra.Command {
	var (
		all          bool
		highlights   bool
		since        string
		until        string
		grep         string
		outputFormat string
	)
	cmd := &cobra.Command{
		Use:   "ls <stream>",
		Short: "List the messages of a stream as a tree",
		Long: `List the messages of a stream as a tree.

Only recent messages are listed unless --all or --since is given.

Examples:
  streams ls notes
  streams ls notes --all --highlights
  streams ls notes --since 1w --grep "*milk*"
  streams ls notes --output jsonl | jq .text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := outline.OutputFormat(outputFormat)
			switch format {
			case outline.OutputFormatDefault, outline.OutputFormatJSONL, outline.OutputFormatText:
			default:
				return fmt.Errorf("invalid output format %q: must be 'default', 'jsonl' or 'text'", outputFormat)
			}

			sinceMs, untilMs, err := timespec.ParseRange(since, until)
			if err != nil {
				return err
			}
			criteria := &filter.Criteria{
				SinceTimestampMs: sinceMs,
				UntilTimestampMs: untilMs,
				TextGlob:         grep,
			}

			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			stream, e, err := s.stream(ctx, args[0])
			if err != nil {
				return err
			}
			view, err := s.view(ctx, stream, e, streams.ViewOptions{
				All:        all || sinceMs > 0,
				Highlights: highlights,
			})
			if err != nil {
				return err
			}

			name, _ := stream.String(string(secure.FieldName))
			if name == "" {
				name = e.Name
			}
			if !criteria.HasFilters() {
				criteria = nil
			}
			if err := outline.Write(printer.Out, view.Tree(), name, format, criteria); err != nil {
				return err
			}
			if format == outline.OutputFormatDefault && view.OldMessagesAvailable() {
				printer.Info("Older messages are hidden; use --all to list them\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every message, not only recent ones")
	cmd.Flags().BoolVar(&highlights, "highlights", false, "List highlighted messages only")
	cmd.Flags().StringVar(&since, "since", "", "Only messages after this time (duration like 1h, 2d or RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "Only messages before this time (duration like 1h, 2d or RFC3339)")
	cmd.Flags().StringVar(&grep, "grep", "", "Only messages whose text matches this glob")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "default", "Output format: default, jsonl or text")
	return cmd
}
