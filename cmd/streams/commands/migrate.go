package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/secure"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "migrate <legacy-stream-id>",
		Short: "Copy a legacy stream into a new signed stream",
		Long: `Copy a stream stored in the legacy unsigned layout into a new stream.

Messages keep their text, highlight, order and nesting. The new stream's
keys are added to the keyring.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			cred, err := s.svc.Migrate(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to migrate %s: %w", args[0], err)
			}

			stream, err := s.svc.LoadStream(ctx, cred.ID, config.KeyringEntry{Credentials: cred}.Capabilities())
			if err != nil {
				return err
			}
			if name == "" {
				name, _ = stream.String(string(secure.FieldName))
			}
			s.keyring.Put(config.KeyringEntry{Kind: config.KindStream, Name: name, Credentials: cred})
			if err := s.saveKeyring(); err != nil {
				return err
			}
			printer.Success("Migrated %s to stream '%s': %s\n", args[0], name, cred.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Keyring name for the new stream (defaults to the stream's name)")
	return cmd
}
