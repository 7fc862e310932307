package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/secure"
)

func newStreamCmd(opts *globalOptions) *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Create, share and delete streams",
	}

	var spaceRef string
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a stream, optionally inside a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var space *secure.Entity
			if spaceRef != "" {
				if space, _, err = s.space(ctx, spaceRef); err != nil {
					return err
				}
			}

			cred, err := s.svc.CreateStream(ctx, space, args[0])
			if err != nil {
				return fmt.Errorf("failed to create stream: %w", err)
			}
			s.keyring.Put(config.KeyringEntry{Kind: config.KindStream, Name: args[0], Credentials: cred})
			if err := s.saveKeyring(); err != nil {
				return err
			}
			printer.Success("Stream '%s' created: %s\n", args[0], cred.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&spaceRef, "space", "", "Space to add the stream to")

	addCmd := &cobra.Command{
		Use:   "add <space> <stream>",
		Short: "Share a stream from the keyring with a space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			space, _, err := s.space(ctx, args[0])
			if err != nil {
				return err
			}
			entry, err := s.entry(config.KindStream, args[1])
			if err != nil {
				return err
			}
			if err := s.svc.AddStream(ctx, space, entry.ID, entry.EPriv, entry.ReaderEPriv); err != nil {
				return fmt.Errorf("failed to add stream: %w", err)
			}
			printer.Success("Stream '%s' added to space '%s'\n", args[1], args[0])
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <space> <stream>",
		Short: "Remove a stream from a space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			space, _, err := s.space(ctx, args[0])
			if err != nil {
				return err
			}
			entry, err := s.entry(config.KindStream, args[1])
			if err != nil {
				return err
			}
			if err := s.svc.DeleteStream(ctx, space, entry.ID); err != nil {
				return fmt.Errorf("failed to remove stream: %w", err)
			}
			printer.Success("Stream '%s' removed from space '%s'\n", args[1], args[0])
			return nil
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List the spaces and streams in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(opts.configPath)
			if err != nil {
				return err
			}
			path := cfg.Keyring
			if opts.keyringPath != "" {
				path = opts.keyringPath
			}
			keyring, err := config.LoadKeyring(path)
			if err != nil {
				return err
			}
			if len(keyring.Entries) == 0 {
				printer.Info("Keyring %s is empty\n", path)
				return nil
			}
			for _, e := range keyring.Entries {
				access := "reader"
				if e.Priv != "" {
					access = "owner"
				} else if e.EPriv != "" {
					access = "member"
				}
				printer.Printf("%-7s %-30s %-7s %s\n", e.Kind, e.Name, access, e.ID)
			}
			return nil
		},
	}

	streamCmd.AddCommand(createCmd, addCmd, rmCmd, lsCmd)
	return streamCmd
}
