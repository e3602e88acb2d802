package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/httpx"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

// Answer is the assistant's reply to a single question.
type Answer struct {
	Text    string
	Sources []chat.Source
}

// Client asks the external assistant gateway. Every failure, including an
// empty answer, is reported as apperr.ErrGatewayUnavailable.
type Client interface {
	Ask(ctx context.Context, question string) (Answer, error)
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type client struct {
	log        *logger.Logger
	baseURL    string
	maxRetries int
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing assistant base url")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        log.With("client", "AssistantClient"),
		baseURL:    baseURL,
		maxRetries: maxRetries,
		httpClient: hc,
	}, nil
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer  string `json:"answer"`
	Sources []struct {
		Source string `json:"source"`
	} `json:"sources"`
}

func (c *client) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: empty question", apperr.ErrInvalidArgument)
	}
	var out askResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", askRequest{Question: question}, &out); err != nil {
		return Answer{}, fmt.Errorf("%w: %w", apperr.ErrGatewayUnavailable, err)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return Answer{}, fmt.Errorf("%w: empty answer", apperr.ErrGatewayUnavailable)
	}
	ans := Answer{Text: out.Answer, Sources: make([]chat.Source, 0, len(out.Sources))}
	for _, s := range out.Sources {
		if src := strings.TrimSpace(s.Source); src != "" {
			ans.Sources = append(ans.Sources, chat.Source{Source: src})
		}
	}
	return ans, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, httpx.NewStatusError("assistant", resp.StatusCode, raw)
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("assistant decode error: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("assistant request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return errors.Join(err, sErr)
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
