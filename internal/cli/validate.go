package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"quizrank-service/internal/infra/memory"
	"quizrank-service/internal/quiz"
)

// NewValidateCmd checks question bank files and self-tests the shuffler and scoring engine.
func NewValidateCmd() *cobra.Command {
	var (
		banks []string
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate question bank files",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := append(append([]string{}, banks...), args...)
			if len(paths) == 0 {
				return errors.New("no bank files given")
			}
			suite := quiz.NewValidationSuite(quiz.ParseMode(mode))

			invalid := 0
			for _, path := range paths {
				bank, err := memory.ReadBankFile(path)
				if err != nil {
					return err
				}
				report := suite.RunAll(bank)
				if !report.Overall.Valid {
					invalid++
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"file": path, "report": report}); err != nil {
					return err
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d banks failed validation", invalid, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&banks, "bank", nil, "question bank YAML file (repeatable)")
	cmd.Flags().StringVar(&mode, "mode", string(quiz.ModeBalanced), "selection mode: balanced or uniform")
	return cmd
}
