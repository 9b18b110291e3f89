// Package remote is a batcher.Engine that forwards batches to an analysis
// engine served over pkg/grpc.
package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/proto"
)

// Caller is the subset of *grpc.Client the engine needs.
type Caller interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// Engine sends each batch as one Parse RPC.
type Engine struct {
	caller   Caller
	language string
	logger   *slog.Logger
}

// New creates an Engine over an existing RPC connection.
func New(caller Caller, language string) *Engine {
	return &Engine{
		caller:   caller,
		language: language,
		logger:   slog.Default().With("component", "remote-engine"),
	}
}

// Dial connects to the engine at addr.
func Dial(addr, language string) (*Engine, *grpc.Client, error) {
	client, err := grpc.Dial(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to analysis engine: %w", err)
	}
	return New(client, language), client, nil
}

// Parse implements batcher.Engine. A nil result from the server leaves the
// item out of the returned map.
func (e *Engine) Parse(ctx context.Context, items []batcher.Item) (map[batcher.Item]proto.Analysis, error) {
	req := &proto.ParseRequest{
		Language:  e.language,
		Sentences: make([]proto.Sentence, len(items)),
	}
	for i, item := range items {
		s := proto.Sentence{Text: item.Text}
		for _, r := range item.Exclusions() {
			s.Exclusions = append(s.Exclusions, proto.Range{Start: r.Start, End: r.End})
		}
		req.Sentences[i] = s
	}

	var resp proto.ParseResponse
	if err := e.caller.Call(ctx, proto.MethodParse, req, &resp); err != nil {
		return nil, fmt.Errorf("parse rpc: %w", err)
	}
	if len(resp.Results) != len(items) {
		return nil, fmt.Errorf("parse rpc: expected %d results, got %d", len(items), len(resp.Results))
	}

	out := make(map[batcher.Item]proto.Analysis, len(items))
	for i, res := range resp.Results {
		if res != nil {
			out[items[i]] = *res
		}
	}
	e.logger.Debug("remote batch parsed",
		"items", len(items),
		"results", len(out),
		"server_latency_ms", resp.LatencyMs,
	)
	return out, nil
}

// Info asks the server for its name and supported languages.
func (e *Engine) Info(ctx context.Context) (*proto.InfoResponse, error) {
	var info proto.InfoResponse
	if err := e.caller.Call(ctx, proto.MethodInfo, struct{}{}, &info); err != nil {
		return nil, fmt.Errorf("info rpc: %w", err)
	}
	return &info, nil
}
