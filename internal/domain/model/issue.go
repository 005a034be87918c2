package model

import "strings"

// Issue is a tracker issue with the workflow transitions available from its
// current status.
type Issue struct {
	Key         IssueKey
	Summary     string
	Type        string
	Status      string
	Transitions []Transition
}

// Transition is a named workflow action on an issue.
type Transition struct {
	ID   string
	Name string
}

// ResolveDoneTransition picks the first transition that moves an issue to a
// terminal state, in tracker order.
func ResolveDoneTransition(transitions []Transition) (Transition, bool) {
	for _, t := range transitions {
		name := strings.ToLower(t.Name)
		if strings.Contains(name, "done") || strings.Contains(name, "close") || name == "mark as done" {
			return t, true
		}
	}
	return Transition{}, false
}
