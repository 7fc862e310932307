package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/git"
	"github.com/dyluth/streams/internal/printer"
	"github.com/dyluth/streams/internal/scaffold"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default streams.yml",
		Long: `Write a default streams.yml next to the --config path.

Inside a Git repository, init also checks that the keyring is ignored:
it holds private keys and must never be committed.

Use --force to replace an existing streams.yml. The keyring is never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Dir(opts.configPath)
			if !force {
				if err := scaffold.CheckExisting(dir); err != nil {
					return err
				}
			}
			if err := scaffold.Initialize(dir, force); err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}

			keyring := config.DefaultKeyring
			if opts.keyringPath != "" {
				keyring = opts.keyringPath
			}
			scaffold.PrintSuccess(keyring)
			checkKeyringIgnored(dir, keyring)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing streams.yml")
	return cmd
}

// checkKeyringIgnored warns when the keyring could be committed.
func checkKeyringIgnored(dir, keyring string) {
	checker := git.NewChecker(dir)
	isRepo, err := checker.IsGitRepository()
	if err != nil || !isRepo {
		return
	}

	rel := keyring
	if filepath.IsAbs(keyring) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return
		}
		if rel, err = filepath.Rel(abs, keyring); err != nil {
			return
		}
	}

	if tracked, err := checker.IsTracked(rel); err == nil && tracked {
		printer.Warning("%s is committed to Git; remove it with 'git rm --cached %s' and rotate its keys\n", rel, rel)
		return
	}
	if ignored, err := checker.IsIgnored(rel); err == nil && !ignored {
		printer.Warning("%s is not in .gitignore; add it before creating streams\n", rel)
	}
}
