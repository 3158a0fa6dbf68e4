package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/driftlabs/driftroute/pkg/types"
)

// generateRequest is the wire format sent to local and external inference
// endpoints.
type generateRequest struct {
	Prompt string `json:"prompt"`
}

// generateResponse is the expected reply shape.
type generateResponse struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

// HTTP calls a local or external inference endpoint over JSON POST. The
// same adapter serves both kinds; only the endpoint and declared budgets
// differ.
type HTTP struct {
	desc   types.BackendDescriptor
	client *http.Client
}

// NewHTTP creates an HTTP-backed generator.
func NewHTTP(desc types.BackendDescriptor, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{desc: desc, client: client}
}

// Descriptor returns the static configuration entry.
func (h *HTTP) Descriptor() types.BackendDescriptor {
	return h.desc
}

// Generate posts the prompt and decodes the reply. Context cancellation and
// deadline expiry surface as the request error.
func (h *HTTP) Generate(ctx context.Context, text string) (types.GenerateResult, error) {
	body, err := json.Marshal(generateRequest{Prompt: text})
	if err != nil {
		return types.GenerateResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.desc.Endpoint, bytes.NewReader(body))
	if err != nil {
		return types.GenerateResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return types.GenerateResult{}, fmt.Errorf("backend %s: %w", h.desc.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		io.CopyN(io.Discard, resp.Body, 512)
		return types.GenerateResult{}, fmt.Errorf("backend %s: unexpected status %d", h.desc.ID, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return types.GenerateResult{}, fmt.Errorf("backend %s: decode response: %w", h.desc.ID, err)
	}

	return types.GenerateResult{Text: decoded.Response, Confidence: decoded.Confidence}, nil
}

// Ping issues a HEAD request against the endpoint. Any HTTP answer counts as
// reachable; only transport errors fail the probe.
func (h *HTTP) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.desc.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s unreachable: %w", h.desc.ID, err)
	}
	resp.Body.Close()
	return nil
}
