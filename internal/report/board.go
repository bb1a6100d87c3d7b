// Package report exports jobs as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/xuri/excelize/v2"
)

// Sheet names
const (
	JobsSheet  = "Jobs"
	StepsSheet = "Steps"
)

const dateLayout = "2006-01-02 15:04"

var (
	jobHeaders = []string{
		"Job ID", "Title", "Project", "Plant Unit", "JMS No.", "Date From", "Date To",
		"Status", "Lane", "Current Step", "Current Assignee", "Progress", "Last Updated",
	}
	stepHeaders = []string{
		"Job ID", "Job Title", "#", "Step", "Assignee", "Status", "Returned",
		"Acknowledged At", "Completed At", "Completed By", "Comments",
	}
)

// WriteBoard writes a workbook with one row per job and one row per step.
// now is recorded in the workbook properties.
func WriteBoard(w io.Writer, jobs []*workflow.Job, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), JobsSheet); err != nil {
		return fmt.Errorf("error renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(StepsSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	if err := writeRow(f, JobsSheet, 1, toValues(jobHeaders)); err != nil {
		return err
	}
	if err := writeRow(f, StepsSheet, 1, toValues(stepHeaders)); err != nil {
		return err
	}

	stepRow := 2
	for i, j := range jobs {
		if err := writeRow(f, JobsSheet, i+2, jobValues(j)); err != nil {
			return err
		}
		for k, s := range j.Steps {
			if err := writeRow(f, StepsSheet, stepRow, stepValues(j, k, s)); err != nil {
				return err
			}
			stepRow++
		}
	}

	for sheet, cols := range map[string]int{JobsSheet: len(jobHeaders), StepsSheet: len(stepHeaders)} {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("error styling header: %w", err)
		}
		last, _ := excelize.ColumnNumberToName(cols)
		if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
			return fmt.Errorf("error setting column width: %w", err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Job board",
		Created: now.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("error setting properties: %w", err)
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func jobValues(j *workflow.Job) []interface{} {
	var currentName, currentAssignee string
	if current := j.CurrentStep(); current != nil {
		currentName = current.Name
		currentAssignee = current.AssigneeID
	}
	done, total := j.Progress()

	return []interface{}{
		j.ID,
		j.Title,
		j.ProjectID,
		j.PlantUnit,
		j.JMSNo,
		formatDate(j.DateFrom),
		formatDate(j.DateTo),
		string(j.Status()),
		string(j.Lane()),
		currentName,
		currentAssignee,
		fmt.Sprintf("%d/%d", done, total),
		j.LastUpdated.UTC().Format(dateLayout),
	}
}

func stepValues(j *workflow.Job, idx int, s workflow.Step) []interface{} {
	returned := ""
	if s.IsReturned {
		returned = "yes"
	}
	return []interface{}{
		j.ID,
		j.Title,
		idx + 1,
		s.Name,
		s.AssigneeID,
		string(s.Status),
		returned,
		formatDate(s.AcknowledgedAt),
		formatDate(s.CompletedAt),
		s.CompletedBy,
		len(s.Comments),
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toValues(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
