package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"quizrank-service/internal/config"
	"quizrank-service/internal/logging"
)

// NewRankingsCmd groups the ranking maintenance subcommands.
func NewRankingsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Rebuild, verify and inspect class rankings",
	}
	cmd.AddCommand(newRankingsRebuildCmd(configPath))
	cmd.AddCommand(newRankingsVerifyCmd(configPath))
	cmd.AddCommand(newRankingsStatsCmd(configPath))
	return cmd
}

func newRankingsRebuildCmd(configPath *string) *cobra.Command {
	var classID string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild one class ranking, or every active class when --class is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadServices(cmd, *configPath)
			if err != nil {
				return err
			}
			defer svc.Close()

			if classID == "" {
				report, err := svc.agg.RegenerateAll(cmd.Context())
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d classes failed", report.Failed, report.TotalClasses)
				}
				return nil
			}
			doc, err := svc.agg.BuildFull(cmd.Context(), classID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&classID, "class", "", "class id")
	return cmd
}

func newRankingsVerifyCmd(configPath *string) *cobra.Command {
	var classID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare a stored class ranking with a fresh recomputation",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadServices(cmd, *configPath)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.agg.Verify(cmd.Context(), classID)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Consistent {
				return fmt.Errorf("ranking of class %s is inconsistent", classID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&classID, "class", "", "class id")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func newRankingsStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate statistics over all stored rankings",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := loadServices(cmd, *configPath)
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.agg.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func loadServices(cmd *cobra.Command, configPath string) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return buildServices(cmd.Context(), cfg, logging.NewWithWriter(cfg, cmd.ErrOrStderr()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
