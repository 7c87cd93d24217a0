package searcher

import (
	"context"
	"encoding/json"

	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/rpc"
)

// RegisterRPC exposes s as the ContextSearch RPC service.
func RegisterRPC(srv *rpc.Server, s *Searcher) {
	srv.Register(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.InvalidInput("malformed search request: %v", err)
		}
		width := s.DefaultContext()
		if req.Context != nil {
			width = *req.Context
		}
		result, cacheHit, err := s.Search(ctx, req.Word, width)
		if err != nil {
			return nil, err
		}
		return &proto.SearchResponse{
			Word:      result.Query,
			Canonical: result.Canonical,
			Context:   result.Context,
			TotalHits: result.TotalHits,
			Hits:      result.Hits,
			CacheHit:  cacheHit,
			LatencyMs: result.LatencyMs,
		}, nil
	})

	srv.Register(proto.MethodStats, func(ctx context.Context, raw json.RawMessage) (any, error) {
		st := s.Stats()
		return &proto.StatsResponse{
			Source:      st.Source,
			Fingerprint: st.Fingerprint,
			SizeBytes:   st.SizeBytes,
			Occurrences: st.Occurrences,
			Vocabulary:  st.Vocabulary,
			MaxContext:  st.MaxContext,
		}, nil
	})

	srv.Register(proto.MethodHealth, func(ctx context.Context, raw json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}
