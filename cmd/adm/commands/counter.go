package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"exambank/internal/config"
	"exambank/internal/observability"
	"exambank/internal/services"
	contextutils "exambank/internal/utils"

	"github.com/spf13/cobra"
)

// CounterCommands returns the exam identifier counter commands
func CounterCommands(sequencer *services.SequencerService, logger *observability.Logger, db *sql.DB, cfg *config.Config) *cobra.Command {
	counterCmd := &cobra.Command{
		Use:   "counter",
		Short: "Exam identifier counter commands",
		Long: `Exam identifier counter commands for the exam bank service.

Available commands:
  show - Show the current counter value and the next identifier
  set  - Set the counter to a specific value`,
	}

	counterCmd.AddCommand(showCounterCmd(sequencer, logger, db, cfg))
	counterCmd.AddCommand(setCounterCmd(logger, db, cfg))

	return counterCmd
}

func showCounterCmd(sequencer *services.SequencerService, logger *observability.Logger, db *sql.DB, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current counter value and the next identifier",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			logger.Info(ctx, "Admin command diagnostics", map[string]interface{}{
				"config_file":  os.Getenv("EXAMBANK_CONFIG_FILE"),
				"database_url": maskDatabaseURL(cfg.Database.URL),
			})

			var value int64
			err := db.QueryRowContext(ctx,
				`SELECT value FROM exam_counters WHERE name = $1`, cfg.Exam.CounterName).Scan(&value)
			if errors.Is(err, sql.ErrNoRows) {
				fmt.Printf("Counter '%s' has not been used yet; first identifier will be %s\n",
					cfg.Exam.CounterName, sequencer.Format(1))
				return nil
			}
			if err != nil {
				return contextutils.WrapError(err, "failed to read exam counter")
			}

			fmt.Printf("Counter '%s' = %d (last issued %s, next %s)\n",
				cfg.Exam.CounterName, value, sequencer.Format(value), sequencer.Format(value+1))
			return nil
		},
	}
}

func setCounterCmd(logger *observability.Logger, db *sql.DB, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set [value]",
		Short: "Set the counter to a specific value",
		Long: `Set the counter to a specific value.

The next issued identifier uses value+1. Lowering the counter can
reissue identifiers that were already handed out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()

			value, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || value < 0 {
				return contextutils.ErrorWithContextf("'%s' is not a non-negative integer", args[0])
			}

			if _, err := db.ExecContext(ctx, `
				INSERT INTO exam_counters (name, value)
				VALUES ($1, $2)
				ON CONFLICT (name)
				DO UPDATE SET value = EXCLUDED.value
			`, cfg.Exam.CounterName, value); err != nil {
				logger.Error(ctx, "Failed to set exam counter", err, map[string]interface{}{
					"counter": cfg.Exam.CounterName,
					"value":   value,
				})
				return contextutils.WrapError(err, "failed to set exam counter")
			}

			fmt.Printf("Counter '%s' set to %d\n", cfg.Exam.CounterName, value)
			return nil
		},
	}
}
