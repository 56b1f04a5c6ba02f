package chatgpt

import (
	"context"
	"errors"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
)

// errWatchAborted is the watcher's abort sentinel. It signals that the
// task's abort flag fired mid-poll; it is never a success value and the
// caller must surface the abort's own reason instead.
var errWatchAborted = errors.New("watch aborted")

// sampleFunc takes one completion-heuristic sample. ok=false means the
// sample for this poll is null (no assistant message yet, or the
// completion marker is absent).
type sampleFunc func(ctx context.Context) (text string, ok bool, err error)

// pageSampler samples via the completion-detection script.
func pageSampler(page browser.Page) sampleFunc {
	return func(ctx context.Context) (string, bool, error) {
		var sample *string
		if err := page.Evaluate(ctx, watchScript, &sample); err != nil {
			return "", false, err
		}
		if sample == nil {
			return "", false, nil
		}
		return *sample, true, nil
	}
}

// watchResponse polls sample every interval until the answer is stable or
// the token aborts. A running counter increments on every non-null sample
// and resets to zero on any null one; the watcher resolves with the
// sampled text the first time the counter reaches stableWindow. On abort
// it returns errWatchAborted.
func watchResponse(ctx context.Context, token *CancelToken, interval time.Duration, sample sampleFunc) (string, error) {
	stable := 0
	for {
		if token.Aborted() {
			return "", errWatchAborted
		}

		text, ok, err := sample(ctx)
		if err != nil {
			return "", err
		}
		if ok {
			stable++
			if stable >= stableWindow {
				return text, nil
			}
		} else {
			stable = 0
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			if token.Aborted() {
				return "", errWatchAborted
			}
			return "", ctx.Err()
		}
	}
}
