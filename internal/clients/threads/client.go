package threads

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

	"github.com/google/uuid"

	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/httpx"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

// Payload is the create/update body. Nil fields are omitted.
type Payload struct {
	Title    *string            `json:"title,omitempty"`
	Messages []chat.ChatMessage `json:"messages,omitempty"`
}

// Client talks to the thread service on behalf of one principal.
type Client interface {
	List(ctx context.Context) ([]chat.ChatThread, error)
	Create(ctx context.Context, p Payload) (chat.ChatThread, error)
	Update(ctx context.Context, id uuid.UUID, p Payload) (chat.ChatThread, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type client struct {
	log        *logger.Logger
	baseURL    string
	token      string
	maxRetries int
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing thread service base url")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &client{
		log:        log.With("client", "ThreadsClient"),
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		maxRetries: max(cfg.MaxRetries, 0),
		httpClient: hc,
	}, nil
}

func (c *client) List(ctx context.Context) ([]chat.ChatThread, error) {
	out := []chat.ChatThread{}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) Create(ctx context.Context, p Payload) (chat.ChatThread, error) {
	var out chat.ChatThread
	err := c.do(ctx, http.MethodPost, "/chats", p, &out)
	return out, err
}

func (c *client) Update(ctx context.Context, id uuid.UUID, p Payload) (chat.ChatThread, error) {
	var out chat.ChatThread
	err := c.do(ctx, http.MethodPut, "/chats/"+id.String(), p, &out)
	return out, err
}

func (c *client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/chats/"+id.String(), nil, nil)
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
		rdr = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

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
		return resp, raw, httpx.NewStatusError("threads", resp.StatusCode, raw)
	}
	return resp, raw, nil
}

// do retries only reads. Mutations are sent once so a lost response never
// creates a duplicate thread.
func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}
	backoff := 500 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return classify(ctx.Err())
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("%w: threads decode error: %v", apperr.ErrStorage, uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt >= retries {
			return classify(err)
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("threads request retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return classify(errors.Join(err, sErr))
		}
		backoff *= 2
	}
}

// classify maps transport results onto the shared sentinels.
func classify(err error) error {
	switch httpx.StatusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", apperr.ErrCredentialInvalid, err)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %w", apperr.ErrInvalidArgument, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
}
