// Package task defines the scrape task input, its validation and
// defaulting rules, and the terminal response record.
package task

import (
	"encoding/json"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/faults"
)

// AnswerType selects the representation of the answer in the response
// record.
type AnswerType string

const (
	AnswerText AnswerType = "text"
	AnswerHTML AnswerType = "html"
	AnswerRaw  AnswerType = "raw"
)

const (
	// DefaultTimeout bounds a task when the input carries none.
	DefaultTimeout = 3 * time.Minute

	// DefaultSessionName labels provisioned sessions.
	DefaultSessionName = "Chatgpt Answer"
)

// Input is one request to obtain a single answer from the chat target.
// Immutable after Format.
type Input struct {
	TaskID           string     `json:"task_id"`
	ProxyURL         string     `json:"proxy_url"`
	TimeoutMS        int64      `json:"timeout"`
	Prompt           string     `json:"prompt"`
	Webhook          string     `json:"webhook,omitempty"`
	SessionName      string     `json:"session_name,omitempty"`
	WebSearch        *bool      `json:"web_search,omitempty"`
	SessionRecording bool       `json:"session_recording,omitempty"`
	AnswerType       AnswerType `json:"answer_type,omitempty"`
}

// Timeout returns the task time budget.
func (in Input) Timeout() time.Duration {
	return time.Duration(in.TimeoutMS) * time.Millisecond
}

// SearchEnabled reports the web-search toggle, defaulting to true.
func (in Input) SearchEnabled() bool {
	if in.WebSearch == nil {
		return true
	}
	return *in.WebSearch
}

// Format validates raw input bytes and applies defaults. A missing prompt
// is a validation fault raised before any session is created.
func Format(data []byte) (Input, error) {
	if len(data) == 0 {
		return Input{}, faults.New(faults.CodeValidation, "no valid input data")
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, faults.Wrap(err, faults.CodeValidation, "input is not valid JSON")
	}
	return Normalize(in)
}

// Normalize applies defaults to a decoded input and validates required
// fields.
func Normalize(in Input) (Input, error) {
	if in.Prompt == "" {
		return Input{}, faults.New(faults.CodeValidation, "prompt is required")
	}
	if in.TimeoutMS <= 0 {
		in.TimeoutMS = DefaultTimeout.Milliseconds()
	}
	if in.WebSearch == nil {
		enabled := true
		in.WebSearch = &enabled
	}
	if in.SessionName == "" {
		in.SessionName = DefaultSessionName
	}
	switch in.AnswerType {
	case AnswerText, AnswerHTML, AnswerRaw:
	default:
		in.AnswerType = AnswerText
	}
	return in, nil
}
