package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/corpus/internal/broker"
)

// buildReplayCmd creates the "replay" command that re-publishes
// object-created events for stored objects.
func buildReplayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "replay <object-key> [object-key...]",
		Short: "Publish synthetic object-created events",
		Long: `Publish a synthetic object-created event for each given object key.

The worker consumes the event exactly like a bucket notification, so this
reprocesses documents whose original event failed or was quarantined. The
object must still exist in the bucket.`,
		Example: `  # Reprocess one document
  corpus replay documents/3f2a7c1e-8a4b-4c3d-9e2f-1a2b3c4d5e6f.pdf

  # Reprocess several
  corpus replay documents/a.pdf documents/b.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, resolveConfigPath(configPath), args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runReplay(cmd *cobra.Command, configPath string, objectKeys []string) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	publisher, err := broker.NewPublisher(cfg.Broker)
	if err != nil {
		return err
	}
	defer publisher.Close()
	publisher = publisher.WithLogger(logger)

	out := cmd.OutOrStdout()
	for _, key := range objectKeys {
		if err := publisher.PublishObjectCreated(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(out, "replayed %s\n", key)
	}
	fmt.Fprintf(out, "%d event(s) published to %s\n", len(objectKeys), cfg.Broker.Exchange)
	return nil
}
