package flow

// OutcomeKind classifies a step handler's result
type OutcomeKind int

// Outcome kinds
const (
	// OutcomeReject keeps the session on the current step; Message
	// explains the expected format.
	OutcomeReject OutcomeKind = iota
	// OutcomeAdvance moves to the next step; Data replaces the stored
	// step data and Message prompts for the next input.
	OutcomeAdvance
	// OutcomeComplete ends the flow; Data is handed to the flow's
	// completion hook for persistence.
	OutcomeComplete
)

// Outcome is a step handler's result
type Outcome struct {
	Kind    OutcomeKind
	Message string
	Data    map[string]string
}

// Reject returns a rejection outcome with a corrective message.
func Reject(message string) Outcome {
	return Outcome{Kind: OutcomeReject, Message: message}
}

// Advance returns an advance outcome carrying the replacement step data
// and the prompt for the next step.
func Advance(data map[string]string, message string) Outcome {
	return Outcome{Kind: OutcomeAdvance, Message: message, Data: data}
}

// Complete returns a completion outcome carrying the final step data.
// Message is used when the completion hook returns no message of its own.
func Complete(data map[string]string, message string) Outcome {
	return Outcome{Kind: OutcomeComplete, Message: message, Data: data}
}
