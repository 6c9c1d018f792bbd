package toolserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// resolveAllowed realpath-resolves path and checks it falls under one of
// the configured FileRoots (spec §6.2: "path validated against an
// allowlist; realpath resolution mandatory" — guards against symlink or
// ../ escapes out of the sandboxed roots).
func (s *Server) resolveAllowed(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// EvalSymlinks requires the target to exist; a write_file call
		// creating a new file resolves its parent directory instead.
		parent, evalErr := filepath.EvalSymlinks(filepath.Dir(abs))
		if evalErr != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		real = filepath.Join(parent, filepath.Base(abs))
	}

	for _, root := range s.cfg.FileRoots {
		rootReal, err := filepath.EvalSymlinks(root)
		if err != nil {
			continue
		}
		if real == rootReal || isSubPath(rootReal, real) {
			return real, nil
		}
	}
	return "", fmt.Errorf("path %q is outside the allowlisted roots", path)
}

func isSubPath(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && rel != "." && len(rel) > 0 && rel[0] != '.'
}

func (s *Server) readFile(_ context.Context, args map[string]interface{}) (*ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("read_file: missing path")
	}
	real, err := s.resolveAllowed(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return &ToolResult{Success: false, Output: err.Error()}, nil
	}
	return &ToolResult{Success: true, Output: string(data)}, nil
}

func (s *Server) writeFile(_ context.Context, args map[string]interface{}) (*ToolResult, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("write_file: missing path")
	}
	real, err := s.resolveAllowed(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return &ToolResult{Success: false, Output: err.Error()}, nil
	}
	if err := os.WriteFile(real, []byte(content), 0o644); err != nil {
		return &ToolResult{Success: false, Output: err.Error()}, nil
	}
	return &ToolResult{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), real)}, nil
}
