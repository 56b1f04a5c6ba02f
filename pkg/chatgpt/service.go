// Package chatgpt drives a provisioned remote browser through one chat
// interaction: submit a prompt, await the generated answer, harvest the
// auxiliary artifacts, and deliver a structured record, all under the
// task's hard time budget.
package chatgpt

import (
	"context"
	"math/rand"
	"net/url"
	"os"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/faults"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/pagescript"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/scrapeless"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// Pusher delivers finished task records; failures must stay internal to
// the pusher.
type Pusher interface {
	Push(ctx context.Context, url string, record any)
}

// Config assembles a Service from its collaborators.
type Config struct {
	// Connector provisions and attaches to remote browsers. Required.
	Connector Connector

	// Pusher delivers records to task webhooks. Optional.
	Pusher Pusher

	// Logger receives task telemetry. Optional, defaults to stdout.
	Logger *logging.Logger

	// Sessions tracks live browsers for process-shutdown teardown.
	// Optional.
	Sessions *browser.Manager

	// WatchInterval overrides the completion-detection poll interval.
	WatchInterval time.Duration

	// Jitter overrides the human-pacing delay, mainly for tests.
	Jitter func(lo, hi time.Duration)

	// ClockOffsetDays pins the in-page clock skew. Zero picks a random
	// offset per task.
	ClockOffsetDays int
}

// Service runs scrape tasks. Safe for concurrent use; every task owns an
// independent token, session, and listener set.
type Service struct {
	connector   Connector
	pusher      Pusher
	log         *logging.Logger
	sessions    *browser.Manager
	interval    time.Duration
	jitter      func(lo, hi time.Duration)
	clockOffset int
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Connector == nil {
		return nil, faults.New(faults.CodeValidation, "connector is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewLogger(os.Stdout, os.Stderr)
	}
	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = watchInterval
	}
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = func(lo, hi time.Duration) {
			time.Sleep(lo + time.Duration(rand.Int63n(int64(hi-lo)+1)))
		}
	}
	return &Service{
		connector:   cfg.Connector,
		pusher:      cfg.Pusher,
		log:         log,
		sessions:    cfg.Sessions,
		interval:    interval,
		jitter:      jitter,
		clockOffset: cfg.ClockOffsetDays,
	}, nil
}

// ChatURL builds the task URL carrying the prompt, plus the search hint
// when web search is enabled.
func ChatURL(in task.Input) string {
	query := url.Values{}
	query.Set("q", in.Prompt)
	if in.SearchEnabled() {
		query.Set("hints", "search")
	}
	return BaseURL + "/?" + query.Encode()
}

// SolveRaw validates raw task bytes and runs the task.
func (s *Service) SolveRaw(ctx context.Context, data []byte) (*task.Output, error) {
	in, err := task.Format(data)
	if err != nil {
		return nil, err
	}
	return s.Solver(ctx, in)
}

// Solver runs one task end to end.
//
// Validation and connection faults return an error and no record: nothing
// useful happened yet. Every later fault is folded into a failure record,
// delivered to the webhook, and returned as a well-formed output with a
// nil error; the caller always gets exactly one terminal artifact per
// provisioned session.
func (s *Service) Solver(ctx context.Context, in task.Input) (*task.Output, error) {
	in, err := task.Normalize(in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	metricTasksStarted.Inc()
	log := s.log.WithTask(in.TaskID, in.SessionName)
	chatURL := ChatURL(in)
	country := scrapeless.CountryFromProxy(in.ProxyURL)
	token := NewCancelToken(start.Add(in.Timeout()))

	log.Info(logging.CategoryTask, "task_started", "task started", map[string]any{
		"prompt_len":  len(in.Prompt),
		"timeout_ms":  in.TimeoutMS,
		"answer_type": string(in.AnswerType),
		"country":     country,
	})

	b, err := s.connector.Connect(ctx, in, token)
	if err != nil {
		metricTasksFailed.WithLabelValues(string(faults.CodeOf(err))).Inc()
		return nil, err
	}
	s.sessions.Register(in.TaskID, b)
	defer func() {
		// Teardown is guaranteed on every exit path and must not mask
		// the primary outcome.
		if err := b.Close(); err != nil {
			log.Warn(logging.CategorySession, "teardown_failed", "browser close failed", map[string]any{"error": err.Error()})
		}
		s.sessions.Release(in.TaskID)
		elapsed := time.Since(start)
		metricTaskDuration.Observe(elapsed.Seconds())
		log.Info(logging.CategoryTask, "task_finished", "processing completed", map[string]any{
			"duration": task.FormatDuration(elapsed),
		})
	}()

	resp, runErr := s.runTask(ctx, in, b, token, chatURL, country, log)
	if runErr != nil {
		resp = &task.Response{
			Prompt:      in.Prompt,
			URL:         chatURL,
			Success:     false,
			CountryCode: country,
			ErrorReason: faults.Reason(runErr),
		}
		metricTasksFailed.WithLabelValues(string(faults.CodeOf(runErr))).Inc()
		log.Warn(logging.CategoryTask, "task_failed", "processing failed", map[string]any{
			"code":  string(faults.CodeOf(runErr)),
			"error": runErr.Error(),
		})
	} else {
		metricTasksSucceeded.Inc()
	}

	resp.TaskID = in.TaskID
	resp.Duration = task.FormatDuration(time.Since(start))

	if s.pusher != nil {
		s.pusher.Push(ctx, in.Webhook, resp)
	}

	return task.BuildOutput(resp)
}

// runTask opens the page and drives the pipeline, converting panics and
// uncategorized errors into internal faults.
func (s *Service) runTask(ctx context.Context, in task.Input, b browser.Browser, token *CancelToken, chatURL, country string, log *logging.Logger) (resp *task.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Newf(faults.CodeInternal, "%spanic: %v", faults.InternalMarker, r)
			resp = nil
		}
		if err != nil && !faults.IsCategorized(err) {
			err = faults.Internal(err)
		}
	}()

	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, faults.Wrap(err, faults.CodeInternal, "open page")
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug(logging.CategorySession, "page_close_failed", "page close failed", map[string]any{"error": err.Error()})
		}
	}()

	if err := page.AddInitScript(ctx, pagescript.ClockSkew(s.clockOffsetDays())); err != nil {
		return nil, faults.Wrap(err, faults.CodeInternal, "install clock skew script")
	}

	p := &pipeline{
		in:       in,
		url:      chatURL,
		country:  country,
		browser:  b,
		page:     page,
		token:    token,
		log:      log,
		buf:      &StreamBuffer{},
		interval: s.interval,
		jitter:   s.jitter,
	}
	return p.run(ctx)
}

// clockOffsetDays picks the masked clock's backdate offset.
func (s *Service) clockOffsetDays() int {
	if s.clockOffset > 0 {
		return s.clockOffset
	}
	return 100 + rand.Intn(365*3)
}
