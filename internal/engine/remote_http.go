package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gend/pkg/types"
)

// providerRequest is the wire form sent to a hosted provider endpoint.
type providerRequest struct {
	Prompt      string            `json:"prompt"`
	Turns       []types.Turn      `json:"turns,omitempty"`
	StateTokens map[string]string `json:"state_tokens,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	TopP        float64           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Seed        int64             `json:"seed,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
}

// providerChunk is one NDJSON line of a streamed provider response. The final
// line carries the result fields; intermediate lines carry tokens.
type providerChunk struct {
	Token        string            `json:"token,omitempty"`
	Done         bool              `json:"done,omitempty"`
	Text         string            `json:"text,omitempty"`
	Media        []types.MediaRef  `json:"media,omitempty"`
	StateTokens  map[string]string `json:"state_tokens,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        types.Usage       `json:"usage,omitempty"`
}

// HTTPProvider invokes a hosted generation endpoint over JSON/NDJSON.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds a provider adapter for the given endpoint.
// A nil client uses a default with no overall timeout; per-call deadlines
// come from the caller's context.
func NewHTTPProvider(baseURL, apiKey string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost:   4,
			ResponseHeaderTimeout: 60 * time.Second,
		}}
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// Invoke satisfies the adapter signature expected by NewRemote.
func (p *HTTPProvider) Invoke(engineID string) func(ctx context.Context, req Request, onToken func(string) error) (Result, error) {
	return func(ctx context.Context, req Request, onToken func(string) error) (Result, error) {
		return p.generate(ctx, engineID, req, onToken)
	}
}

func (p *HTTPProvider) generate(ctx context.Context, engineID string, req Request, onToken func(string) error) (Result, error) {
	body := providerRequest{
		Prompt:      req.Prompt,
		Turns:       req.Turns,
		StateTokens: req.StateTokens,
		MaxTokens:   req.Params.MaxTokens,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		Stop:        req.Params.Stop,
		Seed:        req.Params.Seed,
		Stream:      onToken != nil,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return Result{}, Wrap(InvalidRequest, engineID, err)
	}
	url := fmt.Sprintf("%s/v1/engines/%s/generate", p.baseURL, engineID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return Result{}, Wrap(InvalidRequest, engineID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, Wrap(Overloaded, engineID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, classifyStatus(resp, engineID)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/x-ndjson") {
		return readStream(resp.Body, engineID, onToken)
	}
	var chunk providerChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return Result{}, Wrap(Overloaded, engineID, err)
	}
	return chunk.result(), nil
}

// classifyStatus maps provider HTTP status codes onto the failure taxonomy.
func classifyStatus(resp *http.Response, engineID string) error {
	msg := readErrorBody(resp.Body)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return Fail(RateLimited, engineID, msg)
	case http.StatusPaymentRequired:
		return Fail(QuotaExceeded, engineID, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return Fail(AuthFailed, engineID, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return Fail(InvalidRequest, engineID, msg)
	case http.StatusNotFound:
		return Fail(NotFound, engineID, msg)
	case http.StatusGatewayTimeout:
		return Fail(Timeout, engineID, msg)
	}
	if resp.StatusCode >= 500 {
		return Fail(Overloaded, engineID, msg)
	}
	return Fail(Overloaded, engineID, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, msg))
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var er types.ErrorResponse
	if json.Unmarshal(b, &er) == nil && er.Error != "" {
		return er.Error
	}
	return strings.TrimSpace(string(b))
}

// readStream consumes an NDJSON token stream and returns the final result.
func readStream(r io.Reader, engineID string, onToken func(string) error) (Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var final *providerChunk
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk providerChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return Result{}, Wrap(Overloaded, engineID, err)
		}
		if chunk.Token != "" && onToken != nil {
			if err := onToken(chunk.Token); err != nil {
				return Result{}, err
			}
		}
		if chunk.Done {
			c := chunk
			final = &c
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, Wrap(Overloaded, engineID, err)
	}
	if final == nil {
		return Result{}, Fail(Overloaded, engineID, "stream ended without terminal chunk")
	}
	return final.result(), nil
}

func (c providerChunk) result() Result {
	fr := c.FinishReason
	if fr == "" {
		fr = "stop"
	}
	return Result{
		Text:         c.Text,
		Media:        c.Media,
		StateTokens:  c.StateTokens,
		Usage:        c.Usage,
		FinishReason: fr,
	}
}
