package model

import "regexp"

var issueKeyPattern = regexp.MustCompile(`[A-Z]+-\d+`)

// IssueKey is a tracker identifier of the form PROJECT-NUMBER.
type IssueKey string

// ExtractIssueKey returns the first PROJECT-NUMBER substring of text.
func ExtractIssueKey(text string) (IssueKey, bool) {
	match := issueKeyPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return IssueKey(match), true
}

// IssueKeyFor derives the issue key linked to a pull request. The title wins
// when both title and branch carry a key.
func IssueKeyFor(title, branchRef string) (IssueKey, bool) {
	if key, ok := ExtractIssueKey(title); ok {
		return key, true
	}
	return ExtractIssueKey(branchRef)
}
