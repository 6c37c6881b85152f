package generation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/bulkgen/internal/domain"
)

const generatePath = "/api/perplexity/generate"

// Invoker calls the external content-generation service for one page of products.
type Invoker struct {
	client   *resty.Client
	endpoint string
}

// InvokerConfig holds configuration for the generation client.
type InvokerConfig struct {
	BaseURL      string
	Timeout      time.Duration
	WorkerSecret string // Sent as x-worker-secret when set
}

// Request is one page worth of generation work.
type Request struct {
	StoreID      string
	Products     []domain.Product
	Structure    json.RawMessage
	CustomPrompt *string
}

// ItemResult is the per-product outcome reported by the generation service.
type ItemResult struct {
	ProductID string `json:"productId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Response is the body of a 2xx generation reply.
type Response struct {
	JobID   string       `json:"jobId,omitempty"`
	Results []ItemResult `json:"results"`
}

// FailureCount returns how many items the service reported as failed.
func (r *Response) FailureCount() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}

type generateBody struct {
	StoreID      string           `json:"storeId"`
	Products     []domain.Product `json:"products"`
	Structure    string           `json:"structure"`
	CustomPrompt string           `json:"customPrompt,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewInvoker creates a new generation client.
// Parameters:
//   - cfg: base URL, timeout and worker secret.
//
// Returns:
//   - *Invoker: initialized client.
func NewInvoker(cfg *InvokerConfig) *Invoker {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.WorkerSecret != "" {
		client.SetHeader("x-worker-secret", cfg.WorkerSecret)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	return &Invoker{
		client:   client,
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + generatePath,
	}
}

// Generate submits products for generation and waits for the per-item results.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: products plus the job's structure and optional prompt.
//
// Returns:
//   - *Response: per-item results.
//   - error: *InvokeError on transport failure or non-2xx status.
func (i *Invoker) Generate(ctx context.Context, req Request) (*Response, error) {
	// The service expects the structure as a JSON-encoded string.
	structure := string(req.Structure)
	if structure == "" {
		structure = "null"
	}
	body := generateBody{
		StoreID:   req.StoreID,
		Products:  req.Products,
		Structure: structure,
	}
	if req.CustomPrompt != nil {
		body.CustomPrompt = *req.CustomPrompt
	}

	var out Response
	var errOut errorBody
	resp, err := i.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errOut).
		Post(i.endpoint)
	// A decode failure on an error body still carries a usable status code.
	if err != nil && (resp == nil || resp.StatusCode() == 0 || resp.IsSuccess()) {
		return nil, &InvokeError{Message: "failed to call generation service", Err: err}
	}

	if !resp.IsSuccess() {
		msg := errOut.Error
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(resp.Body())), 300)
		}
		if msg == "" {
			msg = resp.Status()
		}
		return nil, &InvokeError{StatusCode: resp.StatusCode(), Message: msg}
	}

	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
