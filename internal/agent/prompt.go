package agent

import (
	"strings"
	"unicode/utf8"
)

// DefaultDiscussionWindow is how many trailing characters of the
// discussion a prompt quotes when no window is configured.
const DefaultDiscussionWindow = 50000

// RequestInput is everything a persona prompt is assembled from.
// Empty optional fields are left out of the prompt.
type RequestInput struct {
	ExpertName       string
	Description      string
	UserRequest      string
	RephrasedRequest string
	UserInput        string
	Discussion       string

	// Window caps the quoted discussion in characters. Zero or less
	// means DefaultDiscussionWindow.
	Window int
}

// BuildRequest assembles the role-play prompt sent to the completion
// provider. Clauses always appear in the same order: persona, original
// request, rephrased request, additional input, discussion tail.
func BuildRequest(in RequestInput) string {
	var b strings.Builder
	b.WriteString("Act as the ")
	b.WriteString(in.ExpertName)
	b.WriteString(" who ")
	b.WriteString(in.Description)
	b.WriteString(".")

	if in.UserRequest != "" {
		b.WriteString(" Original request was: ")
		b.WriteString(in.UserRequest)
		b.WriteString(".")
	}
	if in.RephrasedRequest != "" {
		b.WriteString(" You are helping a team work on satisfying ")
		b.WriteString(in.RephrasedRequest)
		b.WriteString(".")
	}
	if in.UserInput != "" {
		b.WriteString(" Additional input: ")
		b.WriteString(in.UserInput)
		b.WriteString(".")
	}
	if in.Discussion != "" {
		window := in.Window
		if window <= 0 {
			window = DefaultDiscussionWindow
		}
		b.WriteString(" The discussion so far has been ")
		b.WriteString(lastChars(in.Discussion, window))
		b.WriteString(".")
	}
	return b.String()
}

// lastChars returns the trailing n runes of s.
func lastChars(s string, n int) string {
	count := 0
	for i := len(s); i > 0; {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		count++
		if count == n {
			return s[i:]
		}
	}
	return s
}
