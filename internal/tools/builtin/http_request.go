package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

const maxResponseBytes = 2 * 1024 * 1024

// httpRequestTool issues outbound HTTP requests. HTML responses are reduced
// to readable text with goquery so observations stay compact enough to feed
// back into the conversation.
type httpRequestTool struct {
	client *http.Client
}

// NewHTTPRequest constructs the http_request tool.
func NewHTTPRequest() ports.Tool {
	return &httpRequestTool{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

func (t *httpRequestTool) Type() ports.ToolType {
	return ports.ToolTypeHTTPRequest
}

func (t *httpRequestTool) Name() string {
	return "http_request"
}

func (t *httpRequestTool) Description() string {
	return "Send an HTTP request. Parameters: url, method (default GET), body (optional). HTML responses are converted to plain text."
}

func (t *httpRequestTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body",
			},
		},
		"required": []string{"url"},
	}
}

func (t *httpRequestTool) ValidateParams(params map[string]any) bool {
	url, ok := stringParam(params, "url")
	return ok && strings.HasPrefix(url, "http")
}

func (t *httpRequestTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	url, err := requireString(params, "url")
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(strings.TrimSpace(firstNonEmpty(params, "method", http.MethodGet)))

	var body io.Reader
	if raw, ok := stringParam(params, "body"); ok && raw != "" {
		body = strings.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	content := string(raw)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		if text, err := extractText(content); err == nil {
			content = text
		}
	}

	return map[string]any{
		"status":      resp.StatusCode,
		"contentType": contentType,
		"body":        content,
	}, nil
}

// extractText strips markup and scripts, returning the page's readable text.
func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("title, h1, h2, h3, h4, p, li, td").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(parts, "\n"), nil
}

func firstNonEmpty(params map[string]any, key, fallback string) string {
	if value, ok := stringParam(params, key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
