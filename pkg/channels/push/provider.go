package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
)

// Message is the provider-neutral push request for one device.
type Message struct {
	Token       string            `json:"token"`
	Platform    Platform          `json:"platform"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Badge       int               `json:"badge,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
	Priority    string            `json:"priority"`
	ExpiresAt   int64             `json:"expires_at,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
}

// Response is the gateway's answer for one message.
type Response struct {
	MessageID  string
	StatusCode int
	ErrorCode  string
	RetryAfter time.Duration
	// TokenInvalid is set when the gateway reports the device as gone.
	TokenInvalid bool
}

// Provider sends one message to a push gateway. Returned errors wrap one of
// dispatcher.ErrTransient, ErrPermanent or ErrTokenInvalid.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (Response, error)
}

// HTTPProvider posts messages as JSON to a push gateway such as an FCM or
// APNs relay.
type HTTPProvider struct {
	url    string
	apiKey string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewHTTPProvider creates a provider for the gateway at url. A nil client
// gets a pooled client with the given timeout.
func NewHTTPProvider(url, apiKey, signingSecret string, client *http.Client, timeout time.Duration) (*HTTPProvider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrMissingGateway
	}
	if client == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPProvider{url: url, apiKey: apiKey, secret: signingSecret, client: client, now: time.Now}, nil
}

func (p *HTTPProvider) Name() string { return "http" }

type gatewayReply struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Send posts msg and classifies the reply: 404/410 or an "unregistered"
// error code mark the token invalid, 408/425/429 and 5xx are transient,
// other 4xx are permanent.
func (p *HTTPProvider) Send(ctx context.Context, msg Message) (Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal message: %w", dispatcher.ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", dispatcher.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notifykit-push/1.0")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if p.secret != "" {
		SignRequest(req, p.secret, body, p.now())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", dispatcher.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var reply gatewayReply
	_ = json.Unmarshal(raw, &reply)

	out := Response{
		MessageID:  reply.MessageID,
		StatusCode: resp.StatusCode,
		ErrorCode:  reply.Error,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
	if out.ErrorCode == "" && resp.StatusCode >= 300 {
		out.ErrorCode = strconv.Itoa(resp.StatusCode)
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return out, nil
	case code == http.StatusNotFound, code == http.StatusGone, isUnregistered(reply.Error):
		out.TokenInvalid = true
		return out, fmt.Errorf("%w: gateway status %d", dispatcher.ErrTokenInvalid, code)
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests, code >= 500:
		return out, fmt.Errorf("%w: gateway status %d", dispatcher.ErrTransient, code)
	default:
		return out, fmt.Errorf("%w: gateway status %d %s", dispatcher.ErrPermanent, code, reply.Error)
	}
}

func isUnregistered(code string) bool {
	switch strings.ToLower(code) {
	case "unregistered", "invalid_token", "baddevicetoken", "notregistered":
		return true
	}
	return false
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}
