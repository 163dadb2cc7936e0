package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	maxLineSize  = 1024 * 1024
	maxErrorBody = 64 * 1024
	doneMarker   = "[DONE]"
)

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// Client streams chat completions from an OpenAI compatible endpoint
type Client struct {
	url     string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient creates a streaming client. Referer and title, when set, are sent
// as HTTP-Referer and X-Title on every request.
func NewClient(cfg *config.ProviderConfig, logger *logrus.Logger) *Client {
	var rt http.RoundTripper = http.DefaultTransport
	if cfg.Referer != "" || cfg.Title != "" {
		h := http.Header{}
		if cfg.Referer != "" {
			h.Set("HTTP-Referer", cfg.Referer)
		}
		if cfg.Title != "" {
			h.Set("X-Title", cfg.Title)
		}
		rt = headerTransport{rt: rt, headers: h}
	}

	return &Client{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: rt},
		logger:  logger,
	}
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// Stream sends the payload and yields content deltas as they arrive.
//
// The sequence ends cleanly on "data: [DONE]" or end of body. Errors are
// yielded once as the final element: *UpstreamError for non-2xx replies,
// ErrTimeout when the provider is idle longer than the configured timeout,
// *NetworkError for transport failures and ctx.Err() when ctx is cancelled.
// Breaking out of the loop releases the connection.
func (c *Client) Stream(ctx context.Context, payload Payload) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		parent := ctx
		ctx, cancel := context.WithCancelCause(parent)
		defer cancel(nil)

		watchdog := time.AfterFunc(c.timeout, func() { cancel(ErrTimeout) })
		defer watchdog.Stop()

		payload.Stream = true
		body, err := json.Marshal(payload)
		if err != nil {
			yield("", fmt.Errorf("marshal payload: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			yield("", fmt.Errorf("create request: %w", err))
			return
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			yield("", c.classify(ctx, parent, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			yield("", c.upstreamError(resp))
			return
		}
		watchdog.Reset(c.timeout)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			watchdog.Reset(c.timeout)

			line := strings.TrimSpace(scanner.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == doneMarker {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				c.logger.WithError(err).WithField("line", data).Debug("Skipping malformed stream chunk")
				continue
			}
			if chunk.Error != nil {
				yield("", &UpstreamError{Status: resp.StatusCode, Message: chunk.Error.Message})
				return
			}

			delta := chunk.content()
			if delta == "" {
				continue
			}

			// the consumer's own latency does not count as provider idleness
			watchdog.Stop()
			if !yield(delta, nil) {
				return
			}
			watchdog.Reset(c.timeout)
		}

		if err := scanner.Err(); err != nil {
			yield("", c.classify(ctx, parent, err))
		}
	}
}

func (c *Client) classify(ctx, parent context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		return ErrTimeout
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	return &NetworkError{Err: err}
}

func (c *Client) upstreamError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"message": msg,
	}).Warn("Provider returned an error")

	return &UpstreamError{Status: resp.StatusCode, Message: msg}
}
