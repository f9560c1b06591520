package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSON = errors.New("no JSON found in response")

// ExtractJSON decodes the first JSON value in a model reply into v. A fenced
// ```json block wins; otherwise the outermost {...} or [...] span is used.
func ExtractJSON(reply string, v any) error {
	candidate := fencedBlock(reply)
	if candidate == "" {
		candidate = bracketSpan(reply)
	}
	if candidate == "" {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

func fencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// drop the language tag
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func bracketSpan(s string) string {
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return ""
	}
	closer := byte('}')
	if s[open] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= open {
		return ""
	}
	return s[open : end+1]
}
