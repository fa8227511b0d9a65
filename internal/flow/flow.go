// Package flow implements multi-step conversation flows: typed flow and
// step names, step outcomes, loose-text parsers and the engine that walks
// a user through a flow one message at a time.
package flow

import (
	"context"
	"time"
)

// Name identifies a flow
type Name string

// Step identifies a step within a flow
type Step string

// Flow names
const (
	CreateGroup    Name = "create_group"
	AddMedication  Name = "add_medication"
	AddAppointment Name = "add_appointment"
	AddFamily      Name = "add_family"
)

// StepHandler processes one user input for one step.
// data is the session's current step data; handlers never mutate it, they
// return the full replacement snapshot inside the outcome.
type StepHandler func(ctx context.Context, userID, input string, data map[string]string) Outcome

// CompleteFunc persists the finished flow's data and returns the final
// message for the user.
type CompleteFunc func(ctx context.Context, userID string, data map[string]string) (string, error)

// Definition describes one flow: a linear chain of steps, each with a
// handler, plus a completion hook and an inactivity timeout.
type Definition struct {
	Name        Name
	Steps       []Step
	Handlers    map[Step]StepHandler
	OnComplete  CompleteFunc
	Timeout     time.Duration
	StartPrompt string
}

// FirstStep returns the first step of the chain.
func (d *Definition) FirstStep() Step {
	return d.Steps[0]
}

// NextStep returns the step after current, or "" when current is the last.
func (d *Definition) NextStep(current Step) Step {
	for i, s := range d.Steps {
		if s == current && i+1 < len(d.Steps) {
			return d.Steps[i+1]
		}
	}
	return ""
}
