package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/proto"
)

// Register exposes the analyzer's Parse and Info methods on an RPC server.
func (a *Analyzer) Register(s *grpc.Server) {
	s.Register(proto.MethodParse, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.ParseRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding parse request: %w", err)
		}
		if !a.supports(req.Language) {
			return nil, fmt.Errorf("language %q not supported", req.Language)
		}
		start := time.Now()
		resp := &proto.ParseResponse{Results: make([]*proto.Analysis, len(req.Sentences))}
		for i, s := range req.Sentences {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			excl := make([]batcher.Range, len(s.Exclusions))
			for j, r := range s.Exclusions {
				excl[j] = batcher.Range{Start: r.Start, End: r.End}
			}
			resp.Results[i] = a.Analyze(s.Text, excl)
		}
		resp.LatencyMs = time.Since(start).Milliseconds()
		return resp, nil
	})
	s.Register(proto.MethodInfo, func(ctx context.Context, raw json.RawMessage) (any, error) {
		return &proto.InfoResponse{Name: a.name, Languages: a.languages}, nil
	})
}

func (a *Analyzer) supports(language string) bool {
	if language == "" {
		return true
	}
	for _, l := range a.languages {
		if l == language {
			return true
		}
	}
	return false
}
