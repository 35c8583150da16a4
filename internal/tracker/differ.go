package tracker

import "github.com/PatGB5/codeforces-submission-bot/internal/models"

// Diff returns the submissions of batch (newest first) that are newer than cursor,
// oldest first, and the cursor to store next.
//
// If cursor is not in batch, every submission is new: anything that aged out of the
// fetch window between two polls is never seen. That gap is not reported as an error.
func Diff(cursor int64, batch []models.Submission) ([]models.Submission, int64) {
	var fresh []models.Submission
	for _, s := range batch {
		if s.ID == cursor {
			break
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return nil, cursor
	}

	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh, batch[0].ID
}
