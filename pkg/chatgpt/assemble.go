package chatgpt

import (
	"context"
	"strings"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/faults"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/sanitize"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// sanitizedBody reads the page body and runs the structural strip passes.
func (p *pipeline) sanitizedBody(ctx context.Context) (string, error) {
	var body string
	if err := p.page.Evaluate(ctx, "document.body.innerHTML", &body); err != nil {
		return "", err
	}
	return sanitize.Clean(body), nil
}

// detectErrorBanner checks the sanitized markup for the known failure
// messages. A match overrides any partially collected answer.
func detectErrorBanner(cleanBody string) error {
	for _, banner := range errorBanners {
		if strings.Contains(cleanBody, banner) {
			return faults.New(faults.CodeServiceUnavailable, "ChatGPT is currently unavailable")
		}
	}
	return nil
}

// selectAnswer picks the answer representation requested by the task.
// Unrecognized types fall back to the watcher text.
func selectAnswer(answerType task.AnswerType, watcherText, cleanBody, rawStream string) string {
	switch answerType {
	case task.AnswerHTML:
		return cleanBody
	case task.AnswerRaw:
		return rawStream
	case task.AnswerText:
		return watcherText
	default:
		return watcherText
	}
}
