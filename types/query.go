package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

const (
	ChatTypeChat    = "chat"
	ChatTypeSummary = "summary"
	ChatTypeNotes   = "notes"
	ChatTypeQuizzes = "quizzes"
)

type ChatParams struct {
	Type    string `json:"type" validate:"omitempty,oneof=chat summary notes quizzes"`
	Message string `json:"message" validate:"required_if=Type chat"`
}

type SearchParams struct {
	Prompt string `json:"prompt" validate:"required"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=50"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *ChatParams) Validate() map[string]string {
	if params.Type == "" {
		params.Type = ChatTypeChat
	}
	return validateStruct(params)
}

func (params *SearchParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string, len(errs))
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

type ChatResponse struct {
	Response       string    `json:"response"`
	DocumentName   string    `json:"documentName"`
	Segments       int       `json:"segments"`
	FailedSegments int       `json:"failedSegments"`
	Unified        bool      `json:"unified"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

type SearchResponse struct {
	Sources   []Source  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type Source struct {
	DocID     string  `json:"doc_id"`
	Title     string  `json:"title"`
	ChunkText string  `json:"chunk_text"`
	Index     int     `json:"index"`
	Distance  float64 `json:"distance"`
}
