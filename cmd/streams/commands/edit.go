package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/resolver"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/pkg/graph"
)

// runMessageCmd opens a writable stream, resolves a message in it and calls fn.
func runMessageCmd(opts *globalOptions, streamRef, messageRef string, fn func(ctx context.Context, s *session, stream *secure.Entity, messageID string) error) error {
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
	messageID, err := s.storedMessage(ctx, e, messageRef)
	if err != nil {
		return err
	}
	return fn(ctx, s, stream, messageID)
}

func newEditCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <stream> <message> <text>...",
		Short: "Replace the text of a message",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[2:], " ")
			return runMessageCmd(opts, args[0], args[1], func(ctx context.Context, s *session, stream *secure.Entity, messageID string) error {
				if err := s.svc.UpdateMessage(ctx, stream, messageID, secure.FieldText, graph.Str(text)); err != nil {
					return fmt.Errorf("failed to edit message: %w", err)
				}
				printer.Success("Edited %s\n", resolver.ShortID(messageID))
				return nil
			})
		},
	}
}

func newHighlightCmd(opts *globalOptions) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "highlight <stream> <message>",
		Short: "Highlight a message, or clear its highlight with --off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessageCmd(opts, args[0], args[1], func(ctx context.Context, s *session, stream *secure.Entity, messageID string) error {
				if err := s.svc.UpdateMessage(ctx, stream, messageID, secure.FieldHighlighted, graph.Flag(!off)); err != nil {
					return fmt.Errorf("failed to highlight message: %w", err)
				}
				if off {
					printer.Success("Cleared highlight of %s\n", resolver.ShortID(messageID))
				} else {
					printer.Success("Highlighted %s\n", resolver.ShortID(messageID))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "Clear the highlight")
	return cmd
}

func newRmCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <stream> <message>",
		Short: "Delete a message",
		Long: `Delete a message from a stream.

Replies to a deleted message lose their place in the tree and are no longer
listed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessageCmd(opts, args[0], args[1], func(ctx context.Context, s *session, stream *secure.Entity, messageID string) error {
				if err := s.svc.DeleteMessage(ctx, stream, messageID); err != nil {
					return fmt.Errorf("failed to delete message: %w", err)
				}
				printer.Success("Deleted %s\n", resolver.ShortID(messageID))
				return nil
			})
		},
	}
}
