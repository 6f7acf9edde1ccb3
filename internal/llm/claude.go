// Package llm asks Claude to explain findings in plain English.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Heman10x-NGU/dangleref/internal/detector"
)

const apiURL = "https://api.anthropic.com/v1/messages"

// Explain sends findings to Claude and returns a plain-English explanation.
func Explain(ctx context.Context, findings []detector.Finding, apiKey string) (string, error) {
	return explainAt(ctx, apiURL, findings, apiKey)
}

func explainAt(ctx context.Context, url string, findings []detector.Finding, apiKey string) (string, error) {
	prompt := buildPrompt(findings)

	body, err := json.Marshal(map[string]any{
		"model":      "claude-sonnet-4-6",
		"max_tokens": 1024,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(resp.Body).Decode(&errBody)
		return "", fmt.Errorf("API returned %d: %v", resp.StatusCode, errBody)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(result.Content) > 0 {
		return result.Content[0].Text, nil
	}
	return "", fmt.Errorf("empty response from Claude")
}

func buildPrompt(findings []detector.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I checked a Go program for storage that outlives its scope and for non-sequential execution, and found %d issue(s).\n\n", len(findings))

	for i, f := range findings {
		fmt.Fprintf(&sb, "Issue %d: %s (confidence: %s)\n", i+1, f.Kind, f.Confidence)
		if f.Subject != "" {
			fmt.Fprintf(&sb, "  Subject: %s\n", f.Subject)
		}
		fmt.Fprintf(&sb, "  %s\n", f.Detail)
		if f.Location != "" {
			fmt.Fprintf(&sb, "  Location: %s\n", f.Location)
		}
		if f.Function != "" {
			fmt.Fprintf(&sb, "  Function: %s\n", f.Function)
		}
		if f.Stack != "" {
			fmt.Fprintf(&sb, "  Stack trace:\n%s", f.Stack)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("For each issue:\n")
	sb.WriteString("1. Explain what would happen if the same code were written in C, where the frame's storage is released on return\n")
	sb.WriteString("2. Explain what Go does instead (escape analysis, heap allocation, ownership)\n")
	sb.WriteString("3. Suggest a rewrite that returns by value or lets the caller provide the buffer, if that is clearer\n")
	sb.WriteString("4. Keep explanations concise\n")

	return sb.String()
}
