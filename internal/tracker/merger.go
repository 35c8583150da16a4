package tracker

import "github.com/PatGB5/codeforces-submission-bot/internal/models"

// Merge computes the full replacement contents of a sheet.
//
// Existing rows of handle for a problem present in fresh are dropped unless they are
// accepted, so repeated failed attempts collapse into the latest ones while solved
// problems stay recorded. Rows of other handles are never touched. New rows are
// appended after the retained rows.
func Merge(existing []models.SheetRow, fresh []models.Submission, handle string) []models.SheetRow {
	if len(fresh) == 0 {
		return existing
	}

	added := make([]models.SheetRow, 0, len(fresh))
	names := make(map[string]struct{}, len(fresh))
	for _, s := range fresh {
		row := models.NewSheetRow(handle, s)
		added = append(added, row)
		names[row.ProblemName] = struct{}{}
	}

	combined := make([]models.SheetRow, 0, len(existing)+len(added))
	for _, row := range existing {
		if _, reattempted := names[row.ProblemName]; reattempted && row.Handle == handle && !row.IsAccepted() {
			continue
		}
		combined = append(combined, row)
	}
	return append(combined, added...)
}
