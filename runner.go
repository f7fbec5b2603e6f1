// Package deckshot captures deck screenshots for many targets through a bounded worker pool.
package deckshot

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/root4loot/deckshot/pkg/capture"
	"github.com/root4loot/deckshot/pkg/deck"
	"github.com/root4loot/deckshot/pkg/log"
)

var errNoHost = errors.New("missing host")

// Capturer runs one capture attempt.
type Capturer interface {
	Run(ctx context.Context, req capture.Request) capture.Result
}

// RequestBuilder turns a target URL and output path into a capture request.
type RequestBuilder func(target, output string, extra ...capture.Option) (capture.Request, error)

type Runner struct {
	Options  *Options
	capturer Capturer
	visited  map[string]bool // normalized targets
	outputs  map[string]bool // claimed output paths
	mutex    sync.Mutex
}

// Options contains options for the runner
type Options struct {
	Concurrency int            // number of concurrent captures
	OutFolder   string         // folder receiving one PNG per target
	BaseURL     string         // deck builder prefix for targets given as deck codes
	Imprint     bool           // draw the target under each image
	Build       RequestBuilder // builds the request for each target
	Log         log.Logger
}

// Result is the outcome for one target.
type Result struct {
	Target string
	capture.Result
	Skipped bool // target was a duplicate or could not be normalized
}

// DefaultOptions returns default options
func DefaultOptions() *Options {
	return &Options{
		Concurrency: 3,
		OutFolder:   "./screenshots",
		BaseURL:     deck.DefaultBaseURL,
		Build: func(target, output string, extra ...capture.Option) (capture.Request, error) {
			return capture.NewRequest(target, output, extra...)
		},
		Log: log.Nop{},
	}
}

// NewRunner returns a new runner with default options
func NewRunner(c Capturer) *Runner {
	return NewRunnerWithOptions(c, *DefaultOptions())
}

// NewRunnerWithOptions returns a new runner with the specified options
func NewRunnerWithOptions(c Capturer, options Options) *Runner {
	def := DefaultOptions()
	if options.Concurrency <= 0 {
		options.Concurrency = def.Concurrency
	}
	if options.OutFolder == "" {
		options.OutFolder = def.OutFolder
	}
	if options.BaseURL == "" {
		options.BaseURL = def.BaseURL
	}
	if options.Build == nil {
		options.Build = def.Build
	}
	if options.Log == nil {
		options.Log = def.Log
	}

	return &Runner{
		Options:  &options,
		capturer: c,
		visited:  make(map[string]bool),
		outputs:  make(map[string]bool),
	}
}

// Single captures a single target. Duplicates of an earlier target are skipped.
func (r *Runner) Single(ctx context.Context, target string) Result {
	l := r.Options.Log

	normalized, err := r.normalize(target)
	if err != nil {
		l.Warn("could not normalize target", log.String("target", target), log.Err(err))
		return Result{Target: target, Skipped: true}
	}

	if !r.markVisited(normalized) {
		l.Debug("skipping duplicate target", log.String("target", normalized))
		return Result{Target: target, Skipped: true}
	}

	output, err := capture.FileName(r.Options.OutFolder, normalized)
	if err != nil {
		l.Warn("could not derive output name", log.String("target", normalized), log.Err(err))
		return Result{Target: target, Skipped: true}
	}
	if !r.claimOutput(output) {
		l.Warn("another target already writes this file, skipping", log.String("target", normalized), log.String("path", output))
		return Result{Target: target, Skipped: true}
	}

	var extra []capture.Option
	if r.Options.Imprint {
		extra = append(extra, capture.WithImprint(strings.TrimSpace(target)))
	}

	req, err := r.Options.Build(normalized, output, extra...)
	if err != nil {
		l.Warn("invalid capture request", log.String("target", normalized), log.Err(err))
		return Result{Target: target, Skipped: true}
	}

	return Result{Target: target, Result: r.capturer.Run(ctx, req)}
}

// Multiple captures multiple targets and returns the results.
// Once ctx is done no further targets are started.
func (r *Runner) Multiple(ctx context.Context, targets []string) []Result {
	var (
		results []Result
		mu      sync.Mutex
	)

	sem := make(chan struct{}, r.Options.Concurrency)
	var wg sync.WaitGroup
	for _, target := range targets {
		if !acquire(ctx, sem) {
			break
		}
		wg.Add(1)
		go func(t string) {
			defer func() { <-sem }()
			defer wg.Done()
			res := r.Single(ctx, t)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	return results
}

// MultipleStream captures multiple targets and streams the results using channels.
// Once ctx is done no further targets are started.
func (r *Runner) MultipleStream(ctx context.Context, resultsChan chan<- Result, targets ...string) {
	defer close(resultsChan)

	sem := make(chan struct{}, r.Options.Concurrency)
	var wg sync.WaitGroup
	for _, target := range targets {
		if !acquire(ctx, sem) {
			break
		}
		wg.Add(1)
		go func(t string) {
			defer func() { <-sem }()
			defer wg.Done()
			resultsChan <- r.Single(ctx, t)
		}(target)
	}
	wg.Wait()
}

// acquire takes a worker slot, or reports false when ctx is done first.
func acquire(ctx context.Context, sem chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// normalize turns a deck code into its builder URL and gives bare hosts an https scheme.
func (r *Runner) normalize(target string) (string, error) {
	target = strings.TrimSpace(target)

	if code, ok := deck.ParseTrigger(target); ok {
		target = code
	}
	if deck.ValidCode(target) {
		return deck.URL(r.Options.BaseURL, target)
	}

	if !hasScheme(target) {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", &url.Error{Op: "parse", URL: target, Err: errNoHost}
	}

	switch {
	case u.Scheme == "https" && u.Port() == "443", u.Scheme == "http" && u.Port() == "80":
		u.Host = u.Hostname()
	case u.Port() == "443":
		u.Scheme = "https"
		u.Host = u.Hostname()
	}

	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// hasScheme checks if the target has a scheme
func hasScheme(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// markVisited records str and reports whether it was new.
func (r *Runner) markVisited(str string) bool {
	return mark(&r.mutex, r.visited, str)
}

// claimOutput records path and reports whether no earlier target writes to it.
func (r *Runner) claimOutput(path string) bool {
	return mark(&r.mutex, r.outputs, path)
}

// mark records key in seen and reports whether it was new.
func mark(mu *sync.Mutex, seen map[string]bool, key string) bool {
	mu.Lock()
	defer mu.Unlock()
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}
