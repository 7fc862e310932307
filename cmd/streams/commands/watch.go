package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/health"
	"github.com/dyluth/streams/internal/listener"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/streams"
	"github.com/dyluth/streams/internal/watch"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		healthAddr   string
	)
	cmd := &cobra.Command{
		Use:   "watch <stream>",
		Short: "Stream message changes as they happen",
		Long: `Print every message change of a stream until interrupted.

The existing messages are reported first as creations.

Examples:
  streams watch notes
  streams watch notes --output json
  streams watch notes --health-addr :8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := watch.NewFormatter(watch.OutputFormat(outputFormat), printer.Out)
			if err != nil {
				return fmt.Errorf("invalid output format %q: must be 'default' or 'json'", outputFormat)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			stream, e, err := s.stream(ctx, args[0])
			if err != nil {
				return err
			}
			caps := streams.ReaderCapabilities(stream, e.Capabilities())

			var probe *health.Server
			if healthAddr != "" {
				probe = health.NewServer(s.client, healthAddr)
				if err := probe.Start(); err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					probe.Shutdown(shutdownCtx)
				}()
			}

			tracker := watch.NewTracker()
			feed, err := s.svc.OnMessage(ctx, e.ID, func(batch []listener.Change) {
				if probe != nil {
					probe.Observe()
				}
				decrypted := make([]listener.Change, 0, len(batch))
				for _, ch := range batch {
					if ch.Data == nil {
						decrypted = append(decrypted, ch)
						continue
					}
					message, err := s.svc.DecryptMessage(ch.Data, caps)
					if err != nil {
						log.Printf("[Watch] Skipping %s: %v", ch.Key, err)
						continue
					}
					decrypted = append(decrypted, listener.Change{Key: ch.Key, Data: message})
				}
				for _, ev := range tracker.Events(decrypted) {
					if err := formatter.Format(ev); err != nil {
						log.Printf("[Watch] Failed to write event: %v", err)
					}
				}
			})
			if err != nil {
				return fmt.Errorf("failed to follow stream: %w", err)
			}
			defer feed.Close()

			printer.Info("Watching '%s' (Ctrl+C to stop)\n", e.Name)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "default", "Output format: default or json")
	cmd.Flags().StringVar(&healthAddr, "health-addr", "", "Serve /healthz on this address while watching")
	return cmd
}
