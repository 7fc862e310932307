package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/resolver"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/streams"
)

// stageFunc stages one tree action on a message node.
type stageFunc func(svc *streams.Service, stream *secure.Entity, node *streams.MessageNode) (*streams.Intent, error)

// runIntent resolves a message in a fully loaded view, stages action on it
// and commits it unless dryRun is set.
func runIntent(opts *globalOptions, streamRef, messageRef string, dryRun bool, stage stageFunc) error {
	ctx := context.Background()
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	stream, e, err := s.writableStream(ctx, streamRef)
	if err != nil {
		return err
	}
	view, err := s.view(ctx, stream, e, streams.ViewOptions{All: true})
	if err != nil {
		return err
	}
	node, err := s.message(view, messageRef)
	if err != nil {
		return err
	}

	intent, err := stage(s.svc, stream, node)
	if err != nil {
		if errors.Is(err, streams.ErrNoMove) {
			printer.Warning("Cannot move %s: %v\n", resolver.ShortID(secure.ID(node.Entity)), err)
			return nil
		}
		return err
	}

	if dryRun {
		printer.Info("Would %s %s:\n", intent.Name, resolver.ShortID(secure.ID(node.Entity)))
		for _, step := range intent.Steps() {
			printer.Step("%s\n", step)
		}
		return nil
	}
	if err := intent.Commit(ctx); err != nil {
		return fmt.Errorf("failed to %s: %w", intent.Name, err)
	}
	printer.Success("Done: %s %s\n", intent.Name, resolver.ShortID(secure.ID(node.Entity)))
	return nil
}

func newMoveCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:       "mv <stream> <message> up|down",
		Short:     "Swap a message with its previous or next sibling",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var stage stageFunc
			switch args[2] {
			case "up":
				stage = (*streams.Service).MoveUp
			case "down":
				stage = (*streams.Service).MoveDown
			default:
				return fmt.Errorf("invalid direction %q: must be up or down", args[2])
			}
			return runIntent(opts, args[0], args[1], dryRun, stage)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the writes instead of making them")
	return cmd
}

func newIndentCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "indent <stream> <message>",
		Short: "Make a message the last reply of its previous sibling",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntent(opts, args[0], args[1], dryRun, (*streams.Service).Indent)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the writes instead of making them")
	return cmd
}

func newOutdentCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "outdent <stream> <message>",
		Short: "Move a message out to follow its parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntent(opts, args[0], args[1], dryRun, (*streams.Service).Outdent)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the writes instead of making them")
	return cmd
}
