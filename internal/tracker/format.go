package tracker

import (
	"fmt"
	"html"
	"strings"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// FormatNotification renders a submission for the chat. Values are HTML-escaped,
// messages are sent with HTML parse mode.
func FormatNotification(handle string, s models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New submission by %s\n", html.EscapeString(handle))
	fmt.Fprintf(&b, "Problem: [%s]\n", html.EscapeString(s.Problem.Name))
	fmt.Fprintf(&b, "Rated: [%s]\n", s.Problem.RatingLabel())
	fmt.Fprintf(&b, "Tags: [%s]\n", html.EscapeString(s.Problem.TagList()))
	fmt.Fprintf(&b, "Verdict: %s", html.EscapeString(string(s.Verdict)))
	return b.String()
}
