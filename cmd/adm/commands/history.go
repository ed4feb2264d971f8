package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"exambank/internal/observability"
	contextutils "exambank/internal/utils"

	"github.com/spf13/cobra"
)

// HistoryCommands returns the attempt-history management commands
func HistoryCommands(logger *observability.Logger, db *sql.DB) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Attempt-history management commands",
		Long: `Attempt-history management commands for the exam bank service.

Available commands:
  show  - Show the seen-question record for a user and subject
  reset - Delete the seen-question record for a user and subject`,
	}

	historyCmd.AddCommand(showHistoryCmd(logger, db))
	historyCmd.AddCommand(resetHistoryCmd(logger, db))

	return historyCmd
}

func showHistoryCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "show [user_id] [subject]",
		Short: "Show the seen-question record for a user and subject",
		Args:  cobra.ExactArgs(2),
		RunE:  runShowHistory(logger, db),
	}
}

func resetHistoryCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [user_id] [subject]",
		Short: "Delete the seen-question record for a user and subject",
		Long: `Delete the seen-question record for a user and subject.

The next exam assembled for this pair treats every question as fresh.`,
		Args: cobra.ExactArgs(2),
		RunE: runResetHistory(logger, db),
	}
}

func runShowHistory(logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		userID, subjectName := args[0], args[1]

		var rawSeen []byte
		var updatedAt time.Time
		err := db.QueryRowContext(ctx,
			`SELECT seen_by_category, updated_at FROM exam_histories WHERE user_id = $1 AND subject_name = $2`,
			userID, subjectName).Scan(&rawSeen, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Printf("No attempt history for user '%s' and subject '%s'\n", userID, subjectName)
			return nil
		}
		if err != nil {
			logger.Error(ctx, "Failed to read attempt history", err, map[string]interface{}{
				"user_id": userID,
				"subject": subjectName,
			})
			return contextutils.WrapError(err, "failed to read attempt history")
		}

		seen := make(map[int][]string)
		if len(rawSeen) > 0 {
			if err := json.Unmarshal(rawSeen, &seen); err != nil {
				return contextutils.WrapError(err, "stored attempt history is not decodable")
			}
		}

		fmt.Printf("Attempt history for user '%s', subject '%s' (updated %s)\n",
			userID, subjectName, updatedAt.Format("2006-01-02 15:04:05"))

		categoryIDs := make([]int, 0, len(seen))
		for categoryID := range seen {
			categoryIDs = append(categoryIDs, categoryID)
		}
		sort.Ints(categoryIDs)

		for _, categoryID := range categoryIDs {
			fmt.Printf("  category %d: %d seen %v\n", categoryID, len(seen[categoryID]), seen[categoryID])
		}

		return nil
	}
}

func runResetHistory(logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		userID, subjectName := args[0], args[1]

		result, err := db.ExecContext(ctx,
			`DELETE FROM exam_histories WHERE user_id = $1 AND subject_name = $2`,
			userID, subjectName)
		if err != nil {
			logger.Error(ctx, "Failed to delete attempt history", err, map[string]interface{}{
				"user_id": userID,
				"subject": subjectName,
			})
			return contextutils.WrapError(err, "failed to delete attempt history")
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return contextutils.WrapError(err, "failed to read delete result")
		}
		if affected == 0 {
			fmt.Printf("No attempt history for user '%s' and subject '%s'\n", userID, subjectName)
			return nil
		}

		fmt.Printf("Deleted attempt history for user '%s' and subject '%s'\n", userID, subjectName)
		logger.Info(ctx, "Attempt history reset", map[string]interface{}{
			"user_id": userID,
			"subject": subjectName,
		})
		return nil
	}
}
