// Package handler implements the analyzer's HTTP API on top of a Batcher,
// a per-document session memo, and the document repository.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/documents"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/text/splitter"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/tracing"
)

// DefaultMaxSentences caps the sentences accepted by one analyze request.
const DefaultMaxSentences = 1000

// StatsSource reports result-cache hit and miss counts.
type StatsSource interface {
	Stats() (hits, misses int64)
}

// Options tunes a Handler. Zero values are valid.
type Options struct {
	MaxSentences int
	Tracing      bool
	// SampleRate is the fraction of traced requests whose span tree is
	// logged. Zero logs every request.
	SampleRate  float64
	Stats       StatsSource
	Invalidator *events.Invalidator
}

type Handler struct {
	batcher      *batcher.Batcher[proto.Analysis]
	memo         *batcher.Memo[proto.Analysis, *documents.Document]
	docs         documents.Repository
	invalidator  *events.Invalidator
	stats        StatsSource
	maxSentences int
	tracing      bool
	sampleRate   float64
	logger       *slog.Logger
}

func New(
	b *batcher.Batcher[proto.Analysis],
	memo *batcher.Memo[proto.Analysis, *documents.Document],
	docs documents.Repository,
	opts Options,
) *Handler {
	if opts.MaxSentences <= 0 {
		opts.MaxSentences = DefaultMaxSentences
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 1
	}
	return &Handler{
		batcher:      b,
		memo:         memo,
		docs:         docs,
		invalidator:  opts.Invalidator,
		stats:        opts.Stats,
		maxSentences: opts.MaxSentences,
		tracing:      opts.Tracing,
		sampleRate:   opts.SampleRate,
		logger:       slog.Default().With("component", "analyzer-handler"),
	}
}

// AnalyzeRequest carries either explicit sentences or a text blob to split.
type AnalyzeRequest struct {
	Sentences []proto.Sentence `json:"sentences"`
	Text      string           `json:"text"`
}

// SentenceResult is one analysed sentence. Analysis is null for trivial
// sentences and sentences the engine had nothing to say about.
type SentenceResult struct {
	Index    int             `json:"index"`
	Offset   int             `json:"offset"`
	Text     string          `json:"text"`
	Analysis *proto.Analysis `json:"analysis"`
}

type AnalyzeResponse struct {
	Engine    string           `json:"engine"`
	Language  string           `json:"language"`
	Results   []SentenceResult `json:"results"`
	LatencyMs int64            `json:"latency_ms"`
}

type DocumentAnalysisResponse struct {
	DocumentID string           `json:"document_id"`
	Version    string           `json:"version"`
	Total      int              `json:"total"`
	From       int              `json:"from"`
	To         int              `json:"to"`
	Results    []SentenceResult `json:"results"`
	LatencyMs  int64            `json:"latency_ms"`
}

// Analyze resolves ad-hoc sentences without a document scope.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.startSpan(r, "analyze")
	defer finish()

	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var sentences []splitter.Sentence
	switch {
	case len(req.Sentences) > 0 && req.Text != "":
		h.writeError(w, http.StatusBadRequest, "provide either sentences or text, not both")
		return
	case len(req.Sentences) > 0:
		sentences = make([]splitter.Sentence, len(req.Sentences))
		for i, s := range req.Sentences {
			excl := make([]batcher.Range, len(s.Exclusions))
			for j, ex := range s.Exclusions {
				excl[j] = batcher.Range{Start: ex.Start, End: ex.End}
			}
			sentences[i] = splitter.Sentence{Text: s.Text, Exclusions: excl}
		}
	case req.Text != "":
		sentences = splitter.Split(req.Text)
	default:
		h.writeError(w, http.StatusBadRequest, "sentences or text is required")
		return
	}
	if len(sentences) > h.maxSentences {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d sentences per request", h.maxSentences))
		return
	}

	results, err := h.resolve(ctx, h.batcher.Minimal(), sentences, 0)
	if err != nil {
		h.fail(ctx, w, "analyze failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &AnalyzeResponse{
		Engine:    h.batcher.Name(),
		Language:  h.batcher.Language(),
		Results:   results,
		LatencyMs: time.Since(start).Milliseconds(),
	})
}

// DocumentAnalysis resolves a window of a stored document's sentences
// through the document's memoised session.
func (h *Handler) DocumentAnalysis(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.startSpan(r, "document_analysis")
	defer finish()

	doc, err := h.docs.Get(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(ctx, w, "loading document failed", err)
		return
	}
	sentences := doc.Sentences()
	from, to, err := window(r, len(sentences), h.maxSentences)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := h.memo.ForScope(doc)
	results, err := h.resolve(ctx, session, sentences[from:to], from)
	if err != nil {
		h.fail(ctx, w, "document analysis failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, &DocumentAnalysisResponse{
		DocumentID: doc.ID,
		Version:    doc.VersionStamp(),
		Total:      len(sentences),
		From:       from,
		To:         to,
		Results:    results,
		LatencyMs:  time.Since(start).Milliseconds(),
	})
}

type putDocumentRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type documentResponse struct {
	*documents.Document
	Sentences int `json:"sentences"`
}

// PutDocument creates or replaces a document.
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req putDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if id == "" || req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "document id and body are required")
		return
	}
	doc, err := h.docs.Put(r.Context(), id, req.Title, req.Body)
	if err != nil {
		h.fail(r.Context(), w, "saving document failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentResponse{Document: doc, Sentences: len(doc.Sentences())})
}

// GetDocument returns a stored document.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(r.Context(), w, "loading document failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, documentResponse{Document: doc, Sentences: len(doc.Sentences())})
}

// DeleteDocument removes a document and its remembered session.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.docs.Delete(r.Context(), id); err != nil {
		h.fail(r.Context(), w, "deleting document failed", err)
		return
	}
	h.memo.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

type clearCacheRequest struct {
	Reason string `json:"reason"`
}

// ClearCache drops every cached analysis result, on this instance and,
// when Kafka is configured, on its peers.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	var req clearCacheRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	if h.invalidator != nil {
		ev := events.InvalidateEvent{Engine: h.batcher.Name(), Language: h.batcher.Language(), Reason: req.Reason}
		if _, err := h.invalidator.Invalidate(r.Context(), ev); err != nil {
			h.fail(r.Context(), w, "cache invalidation failed", err)
			return
		}
	} else if err := h.batcher.ClearCache(r.Context()); err != nil {
		h.fail(r.Context(), w, "cache invalidation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// CacheStats reports result-cache effectiveness and memo occupancy.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"engine":          h.batcher.Name(),
		"language":        h.batcher.Language(),
		"cached_sessions": h.memo.Len(),
	}
	if h.stats != nil {
		hits, misses := h.stats.Stats()
		total := hits + misses
		var hitRate float64
		if total > 0 {
			hitRate = float64(hits) / float64(total) * 100
		}
		body["hits"] = hits
		body["misses"] = misses
		body["total"] = total
		body["hit_rate"] = fmt.Sprintf("%.1f%%", hitRate)
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) resolve(ctx context.Context, session *batcher.Session[proto.Analysis], sentences []splitter.Sentence, base int) ([]SentenceResult, error) {
	requested := make([]batcher.Item, len(sentences))
	for i, s := range sentences {
		requested[i] = s.Item()
	}
	res, err := session.Resolve(ctx, requested)
	if err != nil {
		return nil, err
	}
	analyses := res.InOrder(requested)
	out := make([]SentenceResult, len(sentences))
	for i, s := range sentences {
		out[i] = SentenceResult{
			Index:    base + i,
			Offset:   s.Offset,
			Text:     s.Text,
			Analysis: analyses[i],
		}
	}
	return out, nil
}

// window parses ?from=&to= into a half-open range clamped to total. The
// default is the whole document, up to limit sentences.
func window(r *http.Request, total, limit int) (int, int, error) {
	from, to := 0, total
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("from must be a non-negative integer")
		}
		from = min(n, total)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("to must be a non-negative integer")
		}
		to = min(n, total)
	}
	if to < from {
		return 0, 0, errors.New("to must not be smaller than from")
	}
	if to-from > limit {
		to = from + limit
	}
	return from, to, nil
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, func()) {
	ctx := r.Context()
	if !h.tracing || !tracing.Sampled(h.sampleRate) {
		return ctx, func() {}
	}
	ctx, span := tracing.StartSpan(ctx, name, logger.RequestID(ctx))
	span.SetAttr("path", r.URL.Path)
	return ctx, span.Finish
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(msg, "error", err)
	} else {
		logger.FromContext(ctx).Warn(msg, "error", err)
	}
	h.writeError(w, status, http.StatusText(status))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, documents.ErrNotFound):
		return apperrors.HTTPStatusCode(fmt.Errorf("%w: %w", apperrors.ErrNotFound, err))
	case errors.Is(err, batcher.ErrDisposed):
		return apperrors.HTTPStatusCode(fmt.Errorf("%w: %w", apperrors.ErrDisposed, err))
	default:
		return apperrors.HTTPStatusCode(err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
