package agent

import (
	"errors"
	"fmt"
)

// Task selects the per-segment and recombination instructions.
type Task string

const (
	TaskSummarize Task = "summarize"
	TaskAnswer    Task = "answer-question"
)

func (t Task) Valid() bool {
	return t == TaskSummarize || t == TaskAnswer
}

var (
	// ErrEmptyInput means there was nothing to process; it is not an empty answer.
	ErrEmptyInput      = errors.New("document has no content")
	ErrInvalidTask     = errors.New("invalid task")
	ErrMissingQuestion = errors.New("question is required for answer-question")
)

// Request is one pipeline invocation. Text is already-extracted plain text.
type Request struct {
	Text         string
	Task         Task
	Question     string
	DocumentName string
	IsTranscript bool
}

// Result is the single answer returned for a Request.
type Result struct {
	Text     string
	Segments int
	Failed   int
	// Unified is false when the recombination call failed and the parts were concatenated.
	Unified bool
}

func (r Request) validate() error {
	if !r.Task.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTask, string(r.Task))
	}
	if r.Task == TaskAnswer && isBlank(r.Question) {
		return ErrMissingQuestion
	}
	return nil
}
