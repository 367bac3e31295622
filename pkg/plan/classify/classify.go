// Package classify derives the expected file list from a plan's
// natural-language description, with a deterministic fallback when the
// model call fails or times out.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chartsmith/pkg/helm"
	"chartsmith/pkg/llm"
	"chartsmith/pkg/logx"
)

// DefaultTimeout bounds the classification call independently of the
// main orchestration loop's budget.
const DefaultTimeout = 15 * time.Second

const systemPrompt = `You extract Helm chart file paths from a plan description.
Respond with a JSON array of relative file path strings and nothing else.
Order them: Chart.yaml first, then values.yaml, then helpers, then templates.`

// Classifier turns a plan description into an ordered list of expected
// chart file paths.
type Classifier struct {
	client  llm.Client
	logger  *logx.Logger
	timeout time.Duration
}

// NewClassifier creates a classifier over the given client. A nil
// client skips the model call and always uses the fallback extractor.
func NewClassifier(client llm.Client) *Classifier {
	return &Classifier{
		client:  client,
		logger:  logx.NewLogger("classify"),
		timeout: DefaultTimeout,
	}
}

// WithTimeout overrides the classification timeout.
func (c *Classifier) WithTimeout(timeout time.Duration) *Classifier {
	c.timeout = timeout
	return c
}

// ExpectedFiles returns the ordered expected file list for the
// description. Model failures and empty results fall back to the
// deterministic extractor; this method never returns an error.
func (c *Classifier) ExpectedFiles(ctx context.Context, description string) []string {
	if c.client != nil {
		paths, err := c.classifyWithModel(ctx, description)
		if err != nil {
			c.logger.Warn("classification failed, using fallback extractor: %v", err)
		} else if len(paths) > 0 {
			return helm.OrderPaths(paths)
		}
	}
	return ExtractPaths(description)
}

func (c *Classifier) classifyWithModel(ctx context.Context, description string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(systemPrompt),
			llm.NewUserMessage(description),
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	paths, err := parsePathList(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse classification response: %w", err)
	}
	return paths, nil
}

// parsePathList reads a JSON array of strings, tolerating surrounding
// prose or a markdown fence around the array.
func parsePathList(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(raw))
	seen := make(map[string]struct{})
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths, nil
}

// pathPattern matches things that look like relative file paths with a
// recognized extension, optionally backtick-quoted or in a bullet.
var pathPattern = regexp.MustCompile("[A-Za-z0-9_./-]+\\.(?:yaml|yml|tpl|txt)")

// ExtractPaths is the deterministic fallback: scan the description for
// recognized chart file paths and return them in standard order.
func ExtractPaths(description string) []string {
	matches := pathPattern.FindAllString(description, -1)

	seen := make(map[string]struct{})
	var paths []string
	for _, m := range matches {
		m = strings.Trim(m, "./")
		if m == "" {
			continue
		}
		if !helm.IsChartFilePath(m) {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		paths = append(paths, m)
	}
	return helm.OrderPaths(paths)
}
