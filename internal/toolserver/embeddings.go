package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

func (s *Server) embeddingQuery(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	if s.cfg.Embedding == nil || s.cfg.Index == nil {
		return nil, fmt.Errorf("embedding_query: no embedding driver or index configured")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("embedding_query: missing query")
	}
	topK := 5
	if v, ok := args["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}

	vecs, err := s.cfg.Embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding_query: embed: %w", err)
	}
	hits, err := s.cfg.Index.Query(ctx, vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("embedding_query: query index: %w", err)
	}

	out, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("embedding_query: marshal hits: %w", err)
	}
	return &ToolResult{Success: true, Output: string(out)}, nil
}

func (s *Server) embedDocuments(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	if s.cfg.Embedding == nil || s.cfg.Index == nil {
		return nil, fmt.Errorf("embed_documents: no embedding driver or index configured")
	}
	rawPaths, _ := args["paths"].([]interface{})
	if len(rawPaths) == 0 {
		return nil, fmt.Errorf("embed_documents: missing paths")
	}

	var paths []string
	var texts []string
	for _, p := range rawPaths {
		path, ok := p.(string)
		if !ok {
			continue
		}
		real, err := s.resolveAllowed(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(real)
		if err != nil {
			continue
		}
		paths = append(paths, path)
		texts = append(texts, string(data))
	}
	if len(texts) == 0 {
		return &ToolResult{Success: false, Output: "embed_documents: no readable paths"}, nil
	}

	vecs, err := s.cfg.Embedding.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed_documents: embed: %w", err)
	}
	for i, vec := range vecs {
		meta := map[string]string{"path": paths[i]}
		if err := s.cfg.Index.Add(ctx, paths[i], vec, meta); err != nil {
			return nil, fmt.Errorf("embed_documents: add to index: %w", err)
		}
	}
	return &ToolResult{Success: true, Output: fmt.Sprintf("embedded %d documents", len(texts))}, nil
}
