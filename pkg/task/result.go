package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// ImageCard is one generated image harvested from the answer light-box.
type ImageCard struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
}

// Product is one recommended product harvested from the detail panel or a
// spawned tab.
type Product struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	ImageURLs []string `json:"image_urls"`
}

// Citation is one structured source entry from the citations panel.
type Citation struct {
	URL         string `json:"url"`
	Icon        string `json:"icon,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LinkAttached is one inline link from the rendered answer.
type LinkAttached struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
	URL      string `json:"url"`
}

// Response is the single terminal artifact of a task.
//
// Invariant: Success implies ErrorReason is empty; failure implies a
// non-empty ErrorReason, except when the reason originated from an
// uncategorized internal fault, in which case it is blanked before leaving
// the system.
type Response struct {
	Prompt        string         `json:"prompt"`
	TaskID        string         `json:"task_id,omitempty"`
	Duration      string         `json:"duration,omitempty"`
	Answer        string         `json:"answer,omitempty"`
	URL           string         `json:"url"`
	Success       bool           `json:"success"`
	CountryCode   string         `json:"country_code"`
	ErrorReason   string         `json:"error_reason,omitempty"`
	LinksAttached []LinkAttached `json:"links_attached,omitempty"`
	Citations     []Citation     `json:"citations,omitempty"`
	Products      []Product      `json:"products,omitempty"`
	ImageCards    []ImageCard    `json:"image_cards,omitempty"`
}

// Output is the envelope handed back to the worker harness: a byte
// sequence encoding the response record as JSON.
type Output struct {
	URL      string `json:"url"`
	Data     []byte `json:"data"`
	DataType string `json:"dataType"`
}

// FormatDuration renders an elapsed duration as a two-decimal seconds
// string.
func FormatDuration(elapsed time.Duration) string {
	return fmt.Sprintf("%.2f", elapsed.Seconds())
}

// BuildOutput marshals the response record into the delivery envelope.
func BuildOutput(resp *Response) (*Output, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response record: %w", err)
	}
	return &Output{URL: resp.URL, Data: data, DataType: "json"}, nil
}
