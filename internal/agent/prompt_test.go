package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildRequest_PersonaOnly(t *testing.T) {
	got := BuildRequest(RequestInput{ExpertName: "Data Scientist", Description: "analyzes datasets"})
	assert.Equal(t, "Act as the Data Scientist who analyzes datasets.", got)
}

func TestBuildRequest_AdditionalInput(t *testing.T) {
	got := BuildRequest(RequestInput{
		ExpertName:  "Data Scientist",
		Description: "analyzes datasets",
		UserInput:   "look at outliers",
	})
	assert.Equal(t, "Act as the Data Scientist who analyzes datasets. Additional input: look at outliers.", got)
}

func TestBuildRequest_ClauseOrder(t *testing.T) {
	got := BuildRequest(RequestInput{
		ExpertName:       "Editor",
		Description:      "polishes prose",
		UserRequest:      "write a blog post",
		RephrasedRequest: "a 500 word post on Go",
		UserInput:        "keep it short",
		Discussion:       "Writer: draft",
	})
	want := "Act as the Editor who polishes prose." +
		" Original request was: write a blog post." +
		" You are helping a team work on satisfying a 500 word post on Go." +
		" Additional input: keep it short." +
		" The discussion so far has been Writer: draft."
	assert.Equal(t, want, got)
}

func TestBuildRequest_SkipsEmptyClauses(t *testing.T) {
	got := BuildRequest(RequestInput{
		ExpertName:       "Editor",
		Description:      "polishes prose",
		RephrasedRequest: "a tidy README",
	})
	assert.Equal(t, "Act as the Editor who polishes prose. You are helping a team work on satisfying a tidy README.", got)
}

func TestBuildRequest_DiscussionTail(t *testing.T) {
	head := strings.Repeat("h", 10)
	tail := strings.Repeat("t", DefaultDiscussionWindow)
	got := BuildRequest(RequestInput{ExpertName: "A", Description: "b", Discussion: head + tail})

	prefix := "Act as the A who b. The discussion so far has been "
	assert.Equal(t, prefix+tail+".", got)
}

func TestBuildRequest_DiscussionShorterThanWindow(t *testing.T) {
	got := BuildRequest(RequestInput{ExpertName: "A", Description: "b", Discussion: "short"})
	assert.Equal(t, "Act as the A who b. The discussion so far has been short.", got)
}

func TestBuildRequest_CustomWindowCountsCharacters(t *testing.T) {
	got := BuildRequest(RequestInput{ExpertName: "A", Description: "b", Discussion: "ab日本語", Window: 3})
	assert.Equal(t, "Act as the A who b. The discussion so far has been 日本語.", got)
}

func TestLastChars(t *testing.T) {
	s := strings.Repeat("é", 60000)
	out := lastChars(s, DefaultDiscussionWindow)
	assert.Equal(t, DefaultDiscussionWindow, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(s, out))

	assert.Equal(t, "abc", lastChars("abc", 5))
	assert.Equal(t, "c", lastChars("abc", 1))
	assert.Equal(t, "", lastChars("", 3))
}
