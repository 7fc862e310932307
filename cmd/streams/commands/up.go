package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/streams/internal/config"
	dockerpkg "github.com/dyluth/streams/internal/docker"
	"github.com/dyluth/streams/internal/instance"
	"github.com/dyluth/streams/internal/printer"
)

func newUpCmd(opts *globalOptions) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start a local Redis for the configured namespace",
		Long: `Start a local Redis container in Docker for the configured namespace.

The container is reused if it already exists. Point commands at it with the
REDIS_URL printed on success.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.LoadOrDefault(opts.configPath)
			if err != nil {
				return err
			}

			cli, err := dockerpkg.NewClient(ctx)
			if err != nil {
				return err
			}
			defer cli.Close()

			info, err := instance.StartRedis(ctx, cli, cfg.Redis.Namespace, image)
			if err != nil {
				return err
			}
			if info.Started {
				printer.Success("Started Redis container: %s (port %d)\n", info.Name, info.Port)
			} else {
				printer.Info("Redis container %s is already running (port %d)\n", info.Name, info.Port)
			}
			printer.Info("\nexport REDIS_URL=%s\n", info.RedisURL())
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", instance.DefaultRedisImage, "Redis image to run")
	return cmd
}

func newDownCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the local Redis of the configured namespace",
		Long: `Stop and remove the local Redis container of the configured namespace.

Everything stored in it is deleted. Keys in the keyring are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := config.LoadOrDefault(opts.configPath)
			if err != nil {
				return err
			}

			cli, err := dockerpkg.NewClient(ctx)
			if err != nil {
				return err
			}
			defer cli.Close()

			removed, err := instance.StopRedis(ctx, cli, cfg.Redis.Namespace)
			for _, name := range removed {
				printer.Step("Removed %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				return printer.Error(
					"no local Redis found",
					"No Redis container runs for namespace '"+cfg.Redis.Namespace+"'.",
					[]string{"Start one first:\n  streams up"},
				)
			}
			printer.Success("Local Redis for '%s' removed\n", cfg.Redis.Namespace)
			return nil
		},
	}
}
