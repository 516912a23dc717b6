package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/provider"
)

// Endpoint paths in the OpenAI layout. Gemini's compatibility endpoint
// serves the same resources without the /v1 prefix.
const (
	DefaultChatPath   = "/v1/chat/completions"
	DefaultModelsPath = "/v1/models"
)

// Client talks to one Chat Completions backend. The API key travels with
// each request, so a single Client serves every credential slot.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
	apiKey       string

	ChatPath   string
	ModelsPath string

	// ModelMapper rewrites the model name before it is sent, if set.
	ModelMapper func(string) string
}

// NewClient returns a Client for baseURL. apiKey is the fallback for
// requests without their own key and may be empty. timeout bounds
// non-streaming calls; zero means 120s.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	transport := http.DefaultTransport
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		// A stream lasts as long as the model keeps talking; only the
		// request context ends it.
		streamClient: &http.Client{Transport: transport},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		ChatPath:     DefaultChatPath,
		ModelsPath:   DefaultModelsPath,
	}
}

// Complete runs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	resp, err := c.postChat(ctx, c.httpClient, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, api.NewServerError("decoding chat completion: " + err.Error())
	}
	return TranslateResponse(&out), nil
}

// Stream starts a streaming chat completion. HTTP and network failures are
// returned before any event; later failures arrive as a ProviderEventError.
// The channel is closed when the body is exhausted or ctx is done.
func (c *Client) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	resp, err := c.postChat(ctx, c.streamClient, req, true)
	if err != nil {
		return nil, err
	}

	events := make(chan provider.ProviderEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		ParseSSEStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// ListModels returns the models apiKey can use.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]provider.ModelInfo, error) {
	resp, err := c.send(ctx, c.httpClient, http.MethodGet, c.ModelsPath, nil, apiKey)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list ChatModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, api.NewServerError("decoding model list: " + err.Error())
	}
	models := make([]provider.ModelInfo, len(list.Data))
	for i, m := range list.Data {
		models[i] = provider.ModelInfo{ID: m.ID, Object: m.Object, OwnedBy: m.OwnedBy}
	}
	return models, nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// postChat sends req to the chat endpoint with the stream flag forced.
func (c *Client) postChat(ctx context.Context, hc *http.Client, req *provider.ProviderRequest, stream bool) (*http.Response, error) {
	r := *req
	r.Stream = stream
	if c.ModelMapper != nil {
		r.Model = c.ModelMapper(r.Model)
	}

	wire := TranslateToChat(&r)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, api.NewServerError("encoding chat request: " + err.Error())
	}

	debug.Log(debug.Providers, "chat request",
		"url", c.baseURL+c.ChatPath,
		"model", wire.Model,
		"messages", len(wire.Messages),
		"tools", len(wire.Tools),
		"stream", stream,
	)
	debug.Trace(debug.Providers, "chat request body", "body", string(body))

	return c.send(ctx, hc, http.MethodPost, c.ChatPath, body, r.APIKey)
}

// send performs one request and maps transport failures and non-2xx
// answers to API errors. On success the caller owns the response body.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body []byte, apiKey string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("building %s %s: %v", method, path, err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if hc == c.streamClient {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, MapHTTPError(resp)
	}
	return resp, nil
}
