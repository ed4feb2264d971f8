package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"exambank/internal/config"
	"exambank/internal/observability"
	"exambank/internal/services"
	contextutils "exambank/internal/utils"

	"github.com/spf13/cobra"
)

// BankCommands returns the question bank management commands
func BankCommands(bankService *services.BankService, logger *observability.Logger, cfg *config.Config) *cobra.Command {
	bankCmd := &cobra.Command{
		Use:   "bank",
		Short: "Question bank management commands",
		Long: `Question bank management commands for the exam bank service.

Available commands:
  seed - Seed one subject's question bank from a JSON file
  show - Show the category pools stored for a subject`,
	}

	bankCmd.AddCommand(seedCmd(bankService, logger, cfg))
	bankCmd.AddCommand(showBankCmd(bankService, logger))

	return bankCmd
}

// seedFile is the on-disk seed format: category id -> raw question payloads.
// Payloads may be JSON objects or JSON-encoded strings containing objects,
// matching what the store historically held.
type seedFile map[string][]json.RawMessage

func seedCmd(bankService *services.BankService, logger *observability.Logger, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [subject] [file]",
		Short: "Seed a subject's question bank from a JSON file",
		Long: `Seed a subject's question bank from a JSON file.

The file must contain an object mapping category ids to arrays of
question payloads. Existing rows for the same (subject, category)
are replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: runSeed(bankService, logger, cfg),
	}
}

func showBankCmd(bankService *services.BankService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show [subject]",
		Short: "Show the category pools stored for a subject",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowBank(bankService, logger),
	}
}

func runSeed(bankService *services.BankService, logger *observability.Logger, cfg *config.Config) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		subjectName, path := args[0], args[1]

		if !cfg.HasSubject(subjectName) {
			return contextutils.ErrorWithContextf("subject '%s' is not configured; known subjects: %v", subjectName, cfg.SubjectNames())
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read seed file '%s': %v", path, err)
		}

		var seed seedFile
		if err := json.Unmarshal(data, &seed); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInvalidFormat, "seed file is not a category map: %v", err)
		}

		// Deterministic seeding order
		categoryIDs := make([]int, 0, len(seed))
		byCategory := make(map[int][]json.RawMessage, len(seed))
		for key, questions := range seed {
			var categoryID int
			if _, err := fmt.Sscanf(key, "%d", &categoryID); err != nil {
				return contextutils.ErrorWithContextf("seed file key '%s' is not a category id", key)
			}
			categoryIDs = append(categoryIDs, categoryID)
			byCategory[categoryID] = questions
		}
		sort.Ints(categoryIDs)

		total := 0
		for _, categoryID := range categoryIDs {
			questions := byCategory[categoryID]
			if err := bankService.SeedSubject(ctx, subjectName, categoryID, questions); err != nil {
				logger.Error(ctx, "Failed to seed category", err, map[string]interface{}{
					"subject":  subjectName,
					"category": categoryID,
				})
				return contextutils.WrapErrorf(err, "failed to seed category %d", categoryID)
			}
			fmt.Printf("Seeded %s category %d: %d questions\n", subjectName, categoryID, len(questions))
			total += len(questions)
		}

		fmt.Printf("Done: %d categories, %d questions\n", len(categoryIDs), total)
		return nil
	}
}

func runShowBank(bankService *services.BankService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		subjectName := args[0]

		pools, err := bankService.GetSubjectPools(ctx, subjectName)
		if err != nil {
			logger.Error(ctx, "Failed to fetch question bank", err, map[string]interface{}{"subject": subjectName})
			return contextutils.WrapError(err, "failed to fetch question bank")
		}

		if len(pools) == 0 {
			fmt.Printf("No question bank stored for subject '%s'\n", subjectName)
			return nil
		}

		fmt.Printf("%-10s %-10s %s\n", "Category", "Questions", "Sample IDs")
		for _, pool := range pools {
			ids := pool.QuestionIDs()
			if len(ids) > 5 {
				ids = ids[:5]
			}
			fmt.Printf("%-10d %-10d %v\n", pool.CategoryID, len(pool.Questions), ids)
		}

		return nil
	}
}
