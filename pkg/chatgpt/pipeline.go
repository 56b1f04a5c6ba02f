package chatgpt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/faults"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/pagescript"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// jitterWindow bounds one randomized human-pacing delay.
type jitterWindow struct{ lo, hi time.Duration }

var (
	jitterAfterNavigate    = jitterWindow{50 * time.Millisecond, 150 * time.Millisecond}
	jitterBeforeWatch      = jitterWindow{150 * time.Millisecond, 250 * time.Millisecond}
	jitterBeforeImageCards = jitterWindow{150 * time.Millisecond, 250 * time.Millisecond}
	jitterBeforeProducts   = jitterWindow{300 * time.Millisecond, 450 * time.Millisecond}
	jitterBeforeCitations  = jitterWindow{500 * time.Millisecond, time.Second}
	jitterBeforeLinks      = jitterWindow{150 * time.Millisecond, 250 * time.Millisecond}
	jitterSpawnWindow      = jitterWindow{750 * time.Millisecond, 950 * time.Millisecond}
	jitterDetailPoll       = jitterWindow{200 * time.Millisecond, 300 * time.Millisecond}
)

// abortReason records the first failure signal from any source. Later
// signals are discarded; the first one is the one surfaced.
type abortReason struct {
	once sync.Once
	err  error
}

// trip records err as the task's failure and sets the abort flag. No-op
// after the first call.
func (a *abortReason) trip(token *CancelToken, err error) {
	a.once.Do(func() {
		a.err = err
		token.Abort()
	})
}

func (a *abortReason) cause() error {
	if a.err != nil {
		return a.err
	}
	return faults.New(faults.CodeInternal, "task aborted without a recorded reason")
}

// pipeline sequences the extraction stages for one task. Stages run
// strictly in order; the deadline timer and the login-redirect observer
// run alongside them and may abort the task at any point.
type pipeline struct {
	in      task.Input
	url     string
	country string

	browser browser.Browser
	page    browser.Page
	token   *CancelToken
	log     *logging.Logger
	buf     *StreamBuffer

	interval time.Duration
	jitter   func(lo, hi time.Duration)
	sample   sampleFunc

	reason abortReason
}

func (p *pipeline) sampler() sampleFunc {
	if p.sample != nil {
		return p.sample
	}
	return pageSampler(p.page)
}

// pause sleeps a randomized delay inside the stage's jitter window.
func (p *pipeline) pause(w jitterWindow) {
	p.jitter(w.lo, w.hi)
}

// checkpoint reports the recorded abort cause when the flag is already
// set; stages never start page interaction past a tripped checkpoint.
func (p *pipeline) checkpoint() error {
	if p.token.Aborted() {
		return p.reason.cause()
	}
	return nil
}

// settle maps a stage failure to the surfaced fault: the watcher's abort
// sentinel is never forwarded, the abort's own reason is surfaced in its
// place.
func (p *pipeline) settle(err error) error {
	if errors.Is(err, errWatchAborted) {
		return p.reason.cause()
	}
	return err
}

// run drives one task through capture, navigation, input, watch,
// enrichment, and assembly. The caller owns teardown of page and browser.
func (p *pipeline) run(ctx context.Context) (*task.Response, error) {
	budget := time.Until(p.token.Deadline())
	timer := time.AfterFunc(budget, func() {
		p.reason.trip(p.token, faults.Newf(faults.CodeResponseTimeout, "chat timeout after %dms", p.in.TimeoutMS))
	})
	defer timer.Stop()

	taskCtx, cancelTask := context.WithDeadline(ctx, p.token.Deadline())
	defer cancelTask()

	p.log.Debug(logging.CategoryStream, "stream_capture_armed", "registering conversation stream capture", nil)
	cancelStream, err := captureStream(taskCtx, p.page, p.buf, p.log)
	if err != nil {
		return nil, p.settle(faults.Wrap(err, faults.CodeInternal, "install stream capture"))
	}
	defer cancelStream()

	p.log.Debug(logging.CategoryNavigate, "navigating", "navigating to chat target", map[string]any{"url": p.url})
	navCtx, cancelNavCtx := context.WithTimeout(taskCtx, navigateTimeout)
	err = p.page.Navigate(navCtx, p.url)
	cancelNavCtx()
	if err != nil {
		if cause := p.checkpoint(); cause != nil && !errors.Is(err, browser.ErrOperationTimeout) {
			return nil, cause
		}
		return nil, faults.Newf(faults.CodeNavigation, "navigate to chatgpt.com timeout (%dms)", navigateTimeout.Milliseconds())
	}

	// Standing observer for the remainder of the task: landing on the
	// login wall invalidates everything downstream.
	cancelObserver := p.page.OnMainFrameNavigated(func(url string) {
		if !strings.HasPrefix(url, loginWallPrefix) {
			return
		}
		p.reason.trip(p.token, faults.Newf(faults.CodeNavigation, "redirected to OpenAI login page when <<%s>>", p.url))
		p.log.Warn(logging.CategoryNavigate, "login_redirect", "redirected to login wall", map[string]any{"url": url})
	})
	defer cancelObserver()

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	p.pause(jitterAfterNavigate)

	p.log.Debug(logging.CategoryInput, "locating_composer", "making sure prompt composer exists", nil)
	composer, err := p.locateComposer(taskCtx)
	if err != nil {
		if cause := p.checkpoint(); cause != nil {
			return nil, cause
		}
		return nil, faults.New(faults.CodeInputNotFound, "the current region is unavailable or redirected to the login page")
	}
	p.submitPromptIfIdle(taskCtx, composer)

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	p.pause(jitterBeforeWatch)

	p.log.Debug(logging.CategoryWatch, "watching", "waiting for generated answer", nil)
	watcherText, err := watchResponse(taskCtx, p.token, p.interval, p.sampler())
	if err != nil {
		if errors.Is(err, errWatchAborted) {
			return nil, p.reason.cause()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// The deadline and its timer race; trip is idempotent, so
			// both paths surface the same reason.
			p.reason.trip(p.token, faults.Newf(faults.CodeResponseTimeout, "chat timeout after %dms", p.in.TimeoutMS))
			return nil, p.reason.cause()
		}
		p.log.Error(logging.CategoryWatch, "watch_failed", "completion detection failed", map[string]any{"error": err.Error()})
		return nil, faults.Wrap(err, faults.CodeResponseTimeout, "get chatgpt response failed")
	}
	p.log.Debug(logging.CategoryWatch, "answer_received", "generated answer received", nil)

	resp := &task.Response{
		Prompt:      p.in.Prompt,
		URL:         p.url,
		CountryCode: p.country,
	}

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	p.pause(jitterBeforeImageCards)
	resp.ImageCards = p.collectImageCards(taskCtx)

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	p.pause(jitterBeforeProducts)
	resp.Products = p.collectProducts(taskCtx)

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	p.pause(jitterBeforeCitations)
	resp.Citations = p.collectCitations(taskCtx)

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	p.pause(jitterBeforeLinks)
	resp.LinksAttached = p.collectAttachedLinks(taskCtx)

	if cause := p.checkpoint(); cause != nil {
		return nil, cause
	}
	// Shield the page against stray automated clicks from here on.
	if err := p.page.Evaluate(taskCtx, pagescript.ClickShield(), nil); err != nil {
		p.log.Debug(logging.CategoryExtract, "click_shield_failed", "could not inject click shield", map[string]any{"error": err.Error()})
	}

	p.log.Debug(logging.CategoryExtract, "reading_body", "reading and sanitizing page body", nil)
	cleanBody, err := p.sanitizedBody(taskCtx)
	if err != nil {
		return nil, p.settle(faults.Wrap(err, faults.CodeInternal, "read page body"))
	}
	if err := detectErrorBanner(cleanBody); err != nil {
		return nil, err
	}

	resp.Success = true
	resp.Answer = selectAnswer(p.in.AnswerType, watcherText, cleanBody, p.buf.String())
	p.log.Info(logging.CategoryTask, "chat_succeeded", "chat completed successfully", nil)
	return resp, nil
}

// locateComposer races the candidate composer selectors; the first to
// resolve wins.
func (p *pipeline) locateComposer(ctx context.Context) (string, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type raceResult struct {
		sel string
		err error
	}
	results := make(chan raceResult, len(composerSelectors))
	for _, sel := range composerSelectors {
		go func(sel string) {
			results <- raceResult{sel, p.page.WaitForSelector(raceCtx, sel, selectorTimeout)}
		}(sel)
	}

	var lastErr error
	for range composerSelectors {
		res := <-results
		if res.err == nil {
			return res.sel, nil
		}
		lastErr = res.err
	}
	return "", lastErr
}

// submitPromptIfIdle types the prompt into the composer and dispatches
// Enter, but only when the page shows no user turn yet. The prompt
// normally rides in on the URL query and submits itself; this is the
// fallback for page variants that ignore it. Best effort.
func (p *pipeline) submitPromptIfIdle(ctx context.Context, composer string) {
	script := `(() => {
  if (document.querySelector('[data-message-author-role="user"]')) return "submitted";
  const el = document.querySelector(` + quoteJS(composer) + `);
  if (!el) return "missing";
  el.focus();
  const text = ` + quoteJS(p.in.Prompt) + `;
  if (el.isContentEditable) {
    try {
      document.execCommand('selectAll', false);
      document.execCommand('insertText', false, text);
    } catch (e) {
      el.innerText = text;
    }
  } else if ('value' in el) {
    el.value = text;
  }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new KeyboardEvent('keydown', { key: 'Enter', code: 'Enter', keyCode: 13, bubbles: true }));
  return "typed";
})();`
	var outcome string
	if err := p.page.Evaluate(ctx, script, &outcome); err != nil {
		p.log.Debug(logging.CategoryInput, "submit_fallback_failed", "prompt submit fallback failed", map[string]any{"error": err.Error()})
		return
	}
	if outcome == "typed" {
		p.log.Debug(logging.CategoryInput, "submit_fallback_typed", "prompt typed into composer", nil)
	}
}
