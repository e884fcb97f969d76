// Package metrika reports analytics goals to a Yandex Metrika counter.
//
// A goal hit is a pageview of a goal:// URL registered against the counter,
// the same mechanism the browser tag uses. Reporting is fire-and-forget:
// failures are logged and dropped, never retried, never surfaced to the
// caller. Losing a goal must not break the quiz funnel.
package metrika

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL = "https://mc.yandex.ru"
	goalHost       = "goal://opsdeck"
	hitTimeout     = 5 * time.Second
)

// Reporter sends goal hits to the Metrika hit collector.
type Reporter struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// Option adjusts a Reporter.
type Option func(*Reporter)

// WithBaseURL points the reporter at a different collector, for tests.
func WithBaseURL(base string) Option {
	return func(r *Reporter) { r.baseURL = base }
}

// NewReporter builds a reporter. logger may be nil.
func NewReporter(logger *log.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	r := &Reporter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: hitTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReachGoal registers one goal hit on the counter. It never returns an
// error; a failed hit is logged and forgotten.
func (r *Reporter) ReachGoal(ctx context.Context, counterID, goal string) {
	if counterID == "" || goal == "" {
		return
	}
	target := r.baseURL + "/watch/" + url.PathEscape(counterID) +
		"?page-url=" + url.QueryEscape(goalHost+"/"+goal) +
		"&browser-info=" + url.QueryEscape("ar:1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		r.logger.Printf("opsdeck: metrika goal %s: %v", goal, err)
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Printf("opsdeck: metrika goal %s: %v", goal, err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Printf("opsdeck: metrika goal %s: collector returned %d", goal, resp.StatusCode)
	}
}
