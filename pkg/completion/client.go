// Package completion talks to an OpenAI-compatible chat completion endpoint.
// Every failed call is classified as a transport failure, an API error
// payload, or a response that could not be understood.
package completion

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/playground/pkg/logger"
	"github.com/jingkaihe/playground/pkg/telemetry"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
	"github.com/jingkaihe/playground/pkg/usage"
)

// DefaultModel is the model used when none is configured
const DefaultModel = openai.GPT3Dot5Turbo

// Config configures the client
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Proxy is an http, https or socks5 URL
	Proxy string
	// Timeout bounds a whole call. Zero means no timeout.
	Timeout time.Duration
}

// Usage is the token accounting of a response
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Response is a successful completion
type Response struct {
	ID           string
	Object       string
	Created      int64
	Model        string
	Role         convtypes.Role
	Content      string
	FinishReason string
	Usage        Usage
}

// Reply converts the response into the message stored for it
func (r *Response) Reply() convtypes.Reply {
	return convtypes.Reply{
		Role:             r.Role,
		Content:          r.Content,
		PromptTokens:     r.Usage.PromptTokens,
		CompletionTokens: r.Usage.CompletionTokens,
	}
}

// Client sends chat completion requests
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New creates a client. An invalid proxy URL is an error.
func New(cfg Config) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid proxy URL %q", cfg.Proxy)
		}
		switch proxyURL.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, errors.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = &http.Client{
		Transport: &capturingTransport{base: transport},
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

// Model returns the model requests are sent for
func (c *Client) Model() string {
	return c.model
}

// Complete sends messages and returns the first choice of the response.
// Failures are *TransportError, *APIError or *ParseError.
func (c *Client) Complete(ctx context.Context, messages []convtypes.ChatMessage) (*Response, error) {
	var result *Response
	err := telemetry.WithSpan(ctx, telemetry.SpanCompletion, func(ctx context.Context) error {
		var err error
		result, err = c.complete(ctx, messages)
		return err
	}, attribute.String("llm.model", c.model), attribute.Int("llm.messages", len(messages)))
	return result, err
}

func (c *Client) complete(ctx context.Context, messages []convtypes.ChatMessage) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, rec := withRecorder(ctx)

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
	}

	log := logger.G(ctx).WithField("model", c.model).WithField("messages", len(messages))
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		classified := classify(err, rec)
		log.WithError(classified).Debug("completion request failed")
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		if apiErr := parseErrorEnvelope(rec.body, rec.statusCode); apiErr != nil {
			return nil, apiErr
		}
		return nil, &ParseError{
			Err:        errors.New("response has no choices"),
			StatusCode: rec.statusCode,
			Body:       string(rec.body),
		}
	}

	choice := resp.Choices[0]
	role, err := convtypes.ParseRole(choice.Message.Role)
	if err != nil {
		return nil, &ParseError{Err: err, StatusCode: rec.statusCode, Body: string(rec.body)}
	}

	usage.LogCompletionUsage(ctx, c.model,
		int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), start)

	return &Response{
		ID:           resp.ID,
		Object:       resp.Object,
		Created:      resp.Created,
		Model:        resp.Model,
		Role:         role,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:      int64(resp.Usage.TotalTokens),
		},
	}, nil
}

func classify(err error, rec *bodyRecorder) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out := &APIError{
			Message:    apiErr.Message,
			Type:       apiErr.Type,
			Code:       codeString(apiErr.Code),
			StatusCode: apiErr.HTTPStatusCode,
			Body:       string(rec.body),
		}
		if apiErr.Param != nil {
			out.Param = *apiErr.Param
		}
		return out
	}

	if !rec.received {
		return &TransportError{Err: err}
	}

	if apiErr := parseErrorEnvelope(rec.body, rec.statusCode); apiErr != nil {
		return apiErr
	}
	return &ParseError{Err: err, StatusCode: rec.statusCode, Body: string(rec.body)}
}
