package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/secure"
)

func newSpaceCmd(opts *globalOptions) *cobra.Command {
	spaceCmd := &cobra.Command{
		Use:   "space",
		Short: "Create and inspect spaces",
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a space and store its keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			cred, err := s.svc.CreateSpace(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to create space: %w", err)
			}
			s.keyring.Put(config.KeyringEntry{Kind: config.KindSpace, Name: args[0], Credentials: cred})
			if err := s.saveKeyring(); err != nil {
				return err
			}
			printer.Success("Space '%s' created: %s\n", args[0], cred.ID)
			return nil
		},
	}

	var join bool
	streamsCmd := &cobra.Command{
		Use:   "streams <space>",
		Short: "List the streams of a space",
		Long: `List the streams of a space.

With --join, the stream keys the space grants are added to the keyring so
the streams can be read (and written, for space members) directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			space, entry, err := s.space(ctx, args[0])
			if err != nil {
				return err
			}
			listed, err := s.svc.LoadSpaceStreams(ctx, space, entry.Capabilities())
			if err != nil {
				return err
			}
			if len(listed) == 0 {
				printer.Info("No streams in space '%s'\n", entry.Name)
				return nil
			}

			for _, st := range listed {
				access := "reader"
				if st.Caps.Member != "" {
					access = "member"
				}
				printer.Printf("%-30s %-8s %s\n", st.Name, access, st.ID)
				if !join {
					continue
				}
				e := config.KeyringEntry{Kind: config.KindStream, Name: st.Name}
				e.ID = st.ID
				e.Pub = secure.PubOf(st.ID)
				e.EPriv = st.Caps.Member
				e.ReaderEPriv = st.Caps.Reader
				s.keyring.Put(e)
			}
			if join {
				return s.saveKeyring()
			}
			return nil
		},
	}
	streamsCmd.Flags().BoolVar(&join, "join", false, "Store the granted stream keys in the keyring")

	spaceCmd.AddCommand(createCmd, streamsCmd)
	return spaceCmd
}
