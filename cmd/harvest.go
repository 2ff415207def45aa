package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/server"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/worker"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs one harvest.
// Its flags override the matching configuration keys.
func newHarvestCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one harvest over the registry",
		Long: `Walks identifiers from the configured start counter until the crawl
terminates, fetching each record and writing one document per study found.`,
		RunE: runHarvestCommand,
	}

	flags := cmd.Flags()
	flags.String("termination", "", "termination policy: bound or consecutive_absence")
	flags.Int("bound", 0, "maximum identifiers to attempt (0 = no cap under consecutive_absence)")
	flags.Int("absence-limit", 0, "consecutive not-found records that end the crawl")
	flags.Int("concurrency", 0, "records fetched in parallel")
	flags.Int("start", 0, "first identifier counter")
	flags.String("output", "", "output kind: memory, local or postgres")
	flags.String("output-dir", "", "directory for local output")
	flags.String("addr", "", "status server listen address")

	bindFlag(v, cmd, "crawl.termination", "termination")
	bindFlag(v, cmd, "crawl.bound", "bound")
	bindFlag(v, cmd, "crawl.absence_limit", "absence-limit")
	bindFlag(v, cmd, "crawl.concurrency", "concurrency")
	bindFlag(v, cmd, "registry.start_counter", "start")
	bindFlag(v, cmd, "output.kind", "output")
	bindFlag(v, cmd, "output.dir", "output-dir")
	bindFlag(v, cmd, "server.addr", "addr")
	return cmd
}

// bindFlag lets an explicitly set flag win over file and environment values.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}

	app, err := server.Build(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("build harvester: %w", err)
	}
	defer app.Close()

	snap, err := app.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}
	if snap.Status != worker.StatusSucceeded {
		return fmt.Errorf("harvest %s ended %s: %s", snap.RunID, snap.Status, snap.Error)
	}
	rt.logger.Info("Harvest command finished.", zap.Int("documents", snap.Counters.Documents))
	return nil
}
