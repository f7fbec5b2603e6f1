package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/root4loot/deckshot/internal/cache"
	"github.com/root4loot/deckshot/pkg/capture"
	"github.com/root4loot/deckshot/pkg/deck"
	"github.com/root4loot/deckshot/pkg/log"
)

var (
	errBusy    = errors.New("too many renders in progress")
	errNoImage = errors.New("render produced no image")
)

type Handler struct {
	d   Deps
	sem chan struct{}
	log log.Logger
}

func newHandler(d Deps) *Handler {
	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}
	if d.Timeout <= 0 {
		d.Timeout = 60 * time.Second
	}
	if d.Cache == nil {
		d.Cache = cache.Nop{}
	}
	if d.BaseURL == "" {
		d.BaseURL = deck.DefaultBaseURL
	}
	l := d.Log
	if l == nil {
		l = log.Nop{}
	}
	return &Handler{d: d, sem: make(chan struct{}, d.Concurrency), log: l}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// GetDeck renders the deck named by the code query parameter.
func (h *Handler) GetDeck(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		WriteErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required", map[string]any{"field": "code"})
		return
	}
	h.serveDeck(w, r, code)
}

type messageRequest struct {
	Message string `json:"message"`
}

// PostMessage renders a deck when the chat message starts with a trigger such as "!%%45|...".
// Other messages are acknowledged with 204.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	code, ok := deck.ParseTrigger(req.Message)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.serveDeck(w, r, code)
}

func (h *Handler) serveDeck(w http.ResponseWriter, r *http.Request, code string) {
	target, err := deck.URL(h.d.BaseURL, code)
	if err != nil {
		WriteErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), map[string]any{"code": code})
		return
	}

	h.log.Info("rendering deck", log.String("code", code), log.String("url", target))

	ctx, cancel := context.WithTimeout(r.Context(), h.d.Timeout)
	defer cancel()

	img, result, err := h.render(ctx, code, target)
	if err != nil {
		h.writeRenderErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	if result != nil {
		w.Header().Set("X-Deckshot-Strategy", result.Strategy.String())
		w.Header().Set("X-Deckshot-Fallback", strconv.FormatBool(result.Fallback))
	} else {
		w.Header().Set("X-Deckshot-Cache", "hit")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// render returns the image for target, from the cache when possible. The result is nil on a cache hit.
func (h *Handler) render(ctx context.Context, code, target string) ([]byte, *capture.Result, error) {
	tmp, err := os.CreateTemp(h.d.TempDir, "deck-*.png")
	if err != nil {
		return nil, nil, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	var extra []capture.Option
	if h.d.Imprint {
		extra = append(extra, capture.WithImprint(code))
	}
	req, err := h.d.Build(target, path, extra...)
	if err != nil {
		return nil, nil, err
	}

	key := requestKey(h.d.Preset, req)
	img, ok, err := h.d.Cache.Get(ctx, key)
	if err != nil {
		h.log.Warn("cache lookup failed", log.Err(err))
	}
	if ok && len(img) > 0 {
		return img, nil, nil
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		return nil, nil, errBusy
	}

	result := h.d.Capturer.Run(ctx, req)
	if !result.Success() {
		return nil, &result, result.Err
	}

	img, err = os.ReadFile(path)
	if err != nil {
		return nil, &result, err
	}
	if len(img) == 0 {
		return nil, &result, errNoImage
	}

	if err := h.d.Cache.Set(ctx, key, img, h.d.CacheTTL); err != nil {
		h.log.Warn("cache store failed", log.Err(err))
	}
	return img, &result, nil
}

// requestKey identifies the image a request produces: target, strategy, viewport, user agent and imprint.
func requestKey(preset string, req capture.Request) string {
	return cache.Key(
		preset,
		req.URL,
		req.Strategy.String(),
		fmt.Sprintf("%dx%d", req.Viewport.Width, req.Viewport.Height),
		req.UserAgent,
		req.Imprint,
	)
}

func (h *Handler) writeRenderErr(w http.ResponseWriter, err error) {
	if errors.Is(err, errBusy) {
		WriteErr(w, http.StatusServiceUnavailable, "BUSY", err.Error(), nil)
		return
	}

	var ce *capture.Error
	if !errors.As(err, &ce) {
		h.log.Error("render failed", log.Err(err))
		WriteErr(w, http.StatusInternalServerError, "INTERNAL_ERROR", "render failed", nil)
		return
	}

	details := map[string]any{
		"stage": string(ce.Stage),
		"cause": capture.RootCause(ce.Err),
	}
	WriteErr(w, statusFor(ce.Kind), ce.Kind.String(), "deck screenshot failed", details)
}

func statusFor(k capture.Kind) int {
	switch k {
	case capture.KindLaunch:
		return http.StatusServiceUnavailable
	case capture.KindNavigationTimeout, capture.KindReadinessTimeout:
		return http.StatusGatewayTimeout
	case capture.KindCapture, capture.KindOutputValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			log.String("id", middleware.GetReqID(r.Context())),
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", ww.Status()),
			log.Duration("took", time.Since(start)))
	})
}
