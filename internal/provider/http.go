package provider

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"resty.dev/v3"
)

// HTTPOptions configures the HTTP provider client.
type HTTPOptions struct {
	Endpoint string
	Timeout  time.Duration
	Retries  int
	Headers  map[string]string
}

// HTTPProvider talks to a provider service over JSON/HTTP: POST
// {endpoint}/compile and {endpoint}/generate. Requests carry a per-call
// timeout and a bounded retry count; anything still failing after that is
// returned to the caller as an error naming the node path.
type HTTPProvider struct {
	client *resty.Client
}

// NewHTTP builds an HTTP provider from options. Zero values fall back to
// a 120s timeout and no retries.
func NewHTTP(opts HTTPOptions) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.Endpoint).
		SetTimeout(timeout).
		SetRetryCount(opts.Retries).
		SetHeader("Content-Type", "application/json").
		AddContentTypeEncoder("json", func(w io.Writer, v any) error {
			return json.NewEncoder(w).Encode(v)
		}).
		AddContentTypeDecoder("json", func(r io.Reader, v any) error {
			return json.NewDecoder(r).Decode(v)
		})
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}
	return &HTTPProvider{client: client}
}

// Close releases the underlying HTTP client's resources.
func (p *HTTPProvider) Close() error {
	return p.client.Close()
}

// Compile implements Provider.
func (p *HTTPProvider) Compile(ctx context.Context, req *CompileRequest) (*CompileResult, error) {
	var result CompileResult
	if err := p.post(ctx, "/compile", req, &result, req.NodePath); err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate implements Provider.
func (p *HTTPProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	var result GenerateResult
	if err := p.post(ctx, "/generate", req, &result, req.NodePath); err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body, result any, nodePath string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post(path)
	if err != nil {
		return fmt.Errorf("provider %s for %q: %w", path, nodePath, err)
	}
	if resp.IsError() {
		return fmt.Errorf("provider %s for %q: unexpected status %d: %s",
			path, nodePath, resp.StatusCode(), resp.String())
	}
	return nil
}
