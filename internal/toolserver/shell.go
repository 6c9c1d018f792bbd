package toolserver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
	"unicode"
)

// tokenize is a safe splitter standing in for shlex.split: it honors
// single/double quotes and backslash escapes but performs no globbing,
// substitution, or redirection parsing — the command is always executed
// via exec.Command with an argv, never through a shell.
func tokenize(command string) ([]string, error) {
	var tokens []string
	var cur bytes.Buffer
	var inQuote rune
	haveToken := false

	for i := 0; i < len(command); i++ {
		c := rune(command[i])
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
				continue
			}
			cur.WriteRune(c)
		case c == '\'' || c == '"':
			inQuote = c
			haveToken = true
		case c == '\\' && i+1 < len(command):
			i++
			cur.WriteByte(command[i])
			haveToken = true
		case unicode.IsSpace(c):
			if haveToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				haveToken = false
			}
		default:
			cur.WriteRune(c)
			haveToken = true
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("run_shell: unterminated quote")
	}
	if haveToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// runShell executes command via exec.Command (never exec.Command("sh",
// "-c", ...)). When shell=true the spec calls only for a whitelist check
// of the first token, not an actual shell invocation — this module never
// shells out to /bin/sh for user-constructed commands.
func (s *Server) runShell(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("run_shell: missing command")
	}
	shellMode, _ := args["shell"].(bool)

	tokens, err := tokenize(command)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("run_shell: empty command")
	}

	if shellMode && !s.cfg.ShellWhitelist[tokens[0]] {
		return nil, fmt.Errorf("run_shell: %q is not in the shell whitelist", tokens[0])
	}

	timeout := s.cfg.ShellTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tokens[0], tokens[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n[stderr]\n" + stderr.String()
	}
	if runCtx.Err() != nil {
		return &ToolResult{Success: false, Output: "run_shell: timed out"}, nil
	}
	if runErr != nil {
		return &ToolResult{Success: false, Output: output + "\n" + runErr.Error()}, nil
	}
	return &ToolResult{Success: true, Output: output}, nil
}
