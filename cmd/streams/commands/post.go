package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/resolver"
	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/streams"
)

// placement is where a new message goes, as short IDs.
type placement struct {
	parent string
	after  string
	before string
}

func (p *placement) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.parent, "parent", "", "Message to reply under")
	cmd.Flags().StringVar(&p.after, "after", "", "Sibling to place the message after")
	cmd.Flags().StringVar(&p.before, "before", "", "Sibling to place the message before")
}

func (p *placement) empty() bool {
	return p.parent == "" && p.after == "" && p.before == ""
}

// resolve turns the placement into a parent address and neighbours. A new
// sibling takes its anchor's parent; a reply under --parent alone goes after
// the parent's last child.
func (p *placement) resolve(s *session, view *streams.View) (parentID string, previous, next *secure.Entity, err error) {
	var anchor *streams.MessageNode
	if p.after != "" {
		node, err := s.message(view, p.after)
		if err != nil {
			return "", nil, nil, err
		}
		anchor = node
		previous = node.Entity
		if p.before == "" && node.Parent != nil && node.Index+1 < len(node.Parent.Children) {
			next = node.Parent.Children[node.Index+1].Entity
		}
	}
	if p.before != "" {
		node, err := s.message(view, p.before)
		if err != nil {
			return "", nil, nil, err
		}
		if anchor == nil {
			anchor = node
		}
		next = node.Entity
		if p.after == "" && node.Parent != nil && node.Index > 0 {
			previous = node.Parent.Children[node.Index-1].Entity
		}
	}

	if p.parent != "" {
		node, err := s.message(view, p.parent)
		if err != nil {
			return "", nil, nil, err
		}
		parentID = secure.ID(node.Entity)
		if anchor == nil && len(node.Children) > 0 {
			previous = node.Children[len(node.Children)-1].Entity
		}
		return parentID, previous, next, nil
	}

	if anchor != nil && anchor.Parent != nil && !anchor.Parent.IsRoot() {
		parentID = secure.ID(anchor.Parent.Entity)
	}
	return parentID, previous, next, nil
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func newPostCmd(opts *globalOptions) *cobra.Command {
	var (
		at        placement
		highlight bool
	)
	cmd := &cobra.Command{
		Use:   "post <stream> <text>...",
		Short: "Post a message to a stream",
		Long: `Post a message to a stream.

Examples:
  streams post notes "Buy milk"
  streams post notes --parent 7q3k2m9d "Oat, not dairy"
  streams post notes --after 7q3k2m9d --highlight "Remember the bread"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			stream, e, err := s.writableStream(ctx, args[0])
			if err != nil {
				return err
			}

			var (
				parentID       string
				previous, next *secure.Entity
			)
			if !at.empty() {
				view, err := s.view(ctx, stream, e, streams.ViewOptions{All: true})
				if err != nil {
					return err
				}
				if parentID, previous, next, err = at.resolve(s, view); err != nil {
					return err
				}
			}

			msg := streams.Message{Text: strings.Join(args[1:], " "), Highlighted: highlight}
			id, err := s.svc.CreateMessage(ctx, stream, msg, parentID, previous, next)
			if err != nil {
				return fmt.Errorf("failed to post message: %w", err)
			}
			printer.Success("Posted %s\n", resolver.ShortID(id))
			return nil
		},
	}
	at.addFlags(cmd)
	cmd.Flags().BoolVar(&highlight, "highlight", false, "Highlight the message")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "import <stream> <file>",
		Short: "Post every line of a file as a message",
		Long: `Post every non-empty line of a file as its own message, in order.
Use - to read from stdin.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			stream, e, err := s.writableStream(ctx, args[0])
			if err != nil {
				return err
			}
			parentID, err := s.parentID(ctx, e, parent)
			if err != nil {
				return err
			}

			ids, err := s.svc.ImportLines(ctx, stream, parentID, string(data))
			if err != nil {
				return fmt.Errorf("import stopped after %d messages: %w", len(ids), err)
			}
			depth := 0
			if parentID != "" {
				depth = 1
			}
			lines := streams.Lines(string(data))
			for i, id := range ids {
				printer.Message(depth, resolver.ShortID(id), lines[i], false)
			}
			printer.Success("Imported %d messages\n", len(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Message to import under")
	return cmd
}

func newAttachCmd(opts *globalOptions) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "attach <stream> <file>",
		Short: "Post a file as a data URL message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			data, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			stream, e, err := s.writableStream(ctx, args[0])
			if err != nil {
				return err
			}
			parentID, err := s.parentID(ctx, e, parent)
			if err != nil {
				return err
			}

			id, err := s.svc.AddAttachment(ctx, stream, data, parentID)
			if err != nil {
				return fmt.Errorf("failed to attach %s: %w", args[1], err)
			}
			printer.Success("Attached %s as %s\n", args[1], resolver.ShortID(id))
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Message to attach under")
	return cmd
}
