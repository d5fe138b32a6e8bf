package transcript

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet   = "Summary"
	questionsSheet = "Questions"
)

var questionHeader = []string{"#", "Question", "Your answer", "Correct answer", "Status", "Review", "Time (s)", "Solution"}

// WriteXLSX writes t as a workbook with a summary sheet and one row per question.
func WriteXLSX(w io.Writer, t *Transcript) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summary := [][]interface{}{
		{"Test", t.TestName},
		{"Session", t.SessionID},
		{"Score", t.Result.Score},
		{"Total marks", t.Result.TotalMarks},
		{"Correct", t.Result.Correct},
		{"Incorrect", t.Result.Incorrect},
		{"Unattempted", t.Result.Unattempted},
		{"Time taken (min)", t.Result.TimeTaken},
		{"Submitted", t.SubmittedAt.Format("2006-01-02 15:04:05")},
		{"Reason", string(t.Reason)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}

	if err := f.SetSheetRow(questionsSheet, "A1", &questionHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(questionsSheet, "A1", "H1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, r := range t.Rows {
		values := []interface{}{
			r.Number,
			r.QuestionText,
			optionLabel(r.Selected),
			optionLabel(r.Correct),
			string(r.Status),
			r.Review,
			r.TimeSpent,
			r.SolutionText,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(questionsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r.Number, err)
		}
	}
	_ = f.SetColWidth(questionsSheet, "B", "B", 60)
	_ = f.SetColWidth(questionsSheet, "H", "H", 60)
	_ = f.SetColWidth(summarySheet, "A", "A", 18)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
