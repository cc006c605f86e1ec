package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"quizrank-service/internal/domain"
)

const (
	rankingSheet = "Ranking"
	summarySheet = "Summary"
)

// Options controls what a ranking export reveals.
type Options struct {
	// Anonymize replaces names with anonymous ids and leaves emails out.
	Anonymize bool
}

// RankingWorkbook renders a class ranking document as an XLSX workbook: one row per entry
// in rank order plus a summary sheet with the document metadata.
func RankingWorkbook(doc domain.ClassRankingDocument, opts Options) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(rankingSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headers := []any{"Rank", "Student", "Score", "Completed Modules", "Last Activity", "Active"}
	if !opts.Anonymize {
		headers = append(headers, "Email")
	}
	if err := f.SetSheetRow(rankingSheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for i, e := range doc.Rankings {
		name := e.StudentName
		if opts.Anonymize {
			name = e.AnonymousID
		}
		row := []any{e.ClassRank, name, e.TotalNormalizedScore, e.CompletedModules, e.LastActivity, e.IsActive}
		if !opts.Anonymize {
			row = append(row, e.Email)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(rankingSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Class", doc.ClassName},
		{"Class ID", doc.ClassID},
		{"Students", doc.StudentsCount},
		{"Active Students", doc.Metadata.ActiveStudents},
		{"Average Score", doc.Metadata.AverageScore},
		{"Completion Rate (%)", doc.Metadata.CompletionRate},
		{"Last Updated", doc.LastUpdated},
		{"Last Full Rebuild", doc.Metadata.LastFullRebuild},
		{"Version", doc.Metadata.Version},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, fmt.Errorf("failed to write summary: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the suggested download name of a class ranking export.
func Filename(doc domain.ClassRankingDocument) string {
	return fmt.Sprintf("ranking-%s.xlsx", doc.ClassID)
}
