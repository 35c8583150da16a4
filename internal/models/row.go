package models

import "fmt"

// RowTimeLayout is the layout of the creation time column
const RowTimeLayout = "2006-01-02 15:04:05"

// rowColumns is the number of columns a sheet row spans (A..F)
const rowColumns = 6

// SheetRow is one persisted row of a tracking sheet.
// ProblemName is the dedup key within one handle's rows.
type SheetRow struct {
	Handle      string `json:"handle"`
	ProblemName string `json:"problem_name"`
	Rating      string `json:"rating"`
	Tags        string `json:"tags"`
	Verdict     string `json:"verdict"`
	CreatedAt   string `json:"created_at"`
}

// NewSheetRow converts a submission into its sheet representation
func NewSheetRow(handle string, s Submission) SheetRow {
	return SheetRow{
		Handle:      handle,
		ProblemName: s.Problem.Name,
		Rating:      s.Problem.RatingLabel(),
		Tags:        s.Problem.TagList(),
		Verdict:     string(s.Verdict),
		CreatedAt:   s.CreatedAt().Format(RowTimeLayout),
	}
}

// IsAccepted reports whether the row records an accepted solution
func (r SheetRow) IsAccepted() bool {
	return Verdict(r.Verdict).IsAccepted()
}

// Values returns the row as sheet cell values
func (r SheetRow) Values() []any {
	return []any{r.Handle, r.ProblemName, r.Rating, r.Tags, r.Verdict, r.CreatedAt}
}

// SheetRowFromValues builds a row from sheet cell values.
// Short rows are padded; the API omits trailing empty cells.
func SheetRowFromValues(values []any) SheetRow {
	cells := make([]string, rowColumns)
	for i := 0; i < rowColumns && i < len(values); i++ {
		if values[i] != nil {
			cells[i] = fmt.Sprint(values[i])
		}
	}
	return SheetRow{
		Handle:      cells[0],
		ProblemName: cells[1],
		Rating:      cells[2],
		Tags:        cells[3],
		Verdict:     cells[4],
		CreatedAt:   cells[5],
	}
}
