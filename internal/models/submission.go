package models

import (
	"strconv"
	"strings"
	"time"
)

// Verdict is the judge outcome reported by Codeforces
type Verdict string

const (
	VerdictOK                  Verdict = "OK"
	VerdictWrongAnswer         Verdict = "WRONG_ANSWER"
	VerdictTimeLimitExceeded   Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimitExceeded Verdict = "MEMORY_LIMIT_EXCEEDED"
	VerdictRuntimeError        Verdict = "RUNTIME_ERROR"
	VerdictCompilationError    Verdict = "COMPILATION_ERROR"
	VerdictTesting             Verdict = "TESTING"
)

// IsAccepted returns true for an accepted solution
func (v Verdict) IsAccepted() bool {
	return v == VerdictOK
}

// Problem is the problem part of a Codeforces submission
type Problem struct {
	ContestID int      `json:"contestId,omitempty"`
	Index     string   `json:"index,omitempty"`
	Name      string   `json:"name"`
	Rating    *int     `json:"rating,omitempty"`
	Tags      []string `json:"tags"`
}

// RatingLabel returns the rating as text, or "Not Available" for unrated problems
func (p Problem) RatingLabel() string {
	if p.Rating == nil {
		return RatingNotAvailable
	}
	return strconv.Itoa(*p.Rating)
}

// TagList joins the tags the way they are written to the sheet
func (p Problem) TagList() string {
	return strings.Join(p.Tags, ", ")
}

// RatingNotAvailable is written in place of a missing rating
const RatingNotAvailable = "Not Available"

// Submission is one entry of the user.status feed. IDs grow monotonically per user.
type Submission struct {
	ID                  int64   `json:"id"`
	ContestID           int     `json:"contestId,omitempty"`
	CreationTimeSeconds int64   `json:"creationTimeSeconds"`
	Problem             Problem `json:"problem"`
	ProgrammingLanguage string  `json:"programmingLanguage,omitempty"`
	Verdict             Verdict `json:"verdict"`
}

// CreatedAt returns the submission time in UTC
func (s Submission) CreatedAt() time.Time {
	return time.Unix(s.CreationTimeSeconds, 0).UTC()
}

// SubmissionEvent is published for every newly detected submission
type SubmissionEvent struct {
	SessionID  string     `json:"session_id"`
	Owner      string     `json:"owner"`
	Handle     string     `json:"handle"`
	Submission Submission `json:"submission"`
	DetectedAt time.Time  `json:"detected_at"`
}
