package agent

import (
	"fmt"
)

// Type represents the kind of an agent.
type Type string

const (
	// TypePipeline represents the agent that generates workflow and Dockerfile artifacts.
	TypePipeline Type = "pipeline"

	// TypePredictor represents the agent that analyzes build data for failure prediction.
	TypePredictor Type = "predictor"

	// TypeReview represents the agent that reviews changed files on a pull request.
	TypeReview Type = "review"

	// TypeChat represents the agent that replies to conversational prompts on a pull request.
	TypeChat Type = "chat"
)

// IsValid checks if the agent type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypePipeline, TypePredictor, TypeReview, TypeChat:
		return true
	default:
		return false
	}
}

// String returns the string representation of the agent type.
func (t Type) String() string {
	return string(t)
}

// Parse parses a string into a Type.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid agent type: %s (must be 'pipeline', 'predictor', 'review' or 'chat')", s)
	}
	return t, nil
}
