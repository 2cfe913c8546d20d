package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/internal/api"
	"github.com/dmitrymomot/notifykit/pkg/channels/email"
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	mailer "github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
)

type gateway struct{}

func (gateway) Name() string { return "test" }

func (gateway) Send(_ context.Context, msg push.Message) (push.Response, error) {
	return push.Response{MessageID: "push-" + msg.Token, StatusCode: http.StatusOK}, nil
}

type outbox struct{}

func (outbox) SendEmail(context.Context, mailer.SendEmailParams) (string, error) {
	return "mail-1", nil
}

type env struct {
	handler  http.Handler
	proc     *processor.Processor
	repo     *notifications.MemoryRepository
	realtime *realtime.Channel
	push     *push.Channel
}

type setup struct {
	noStart    bool
	noChannels bool
}

func newEnv(t *testing.T, s setup) *env {
	t.Helper()

	cfg := processor.DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second

	repo := notifications.NewMemoryRepository()
	proc, err := processor.New(cfg, repo)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	d := api.Deps{
		Processor:  proc,
		Repository: repo,
		Metrics:    metrics.NewHTTP(reg, "test"),
		Gatherer:   reg,
		Heartbeat:  time.Hour,
	}
	e := &env{proc: proc, repo: repo}
	if !s.noChannels {
		e.realtime = realtime.New()
		e.push = push.New(gateway{})
		d.Realtime, d.Push, d.Email = e.realtime, e.push, email.New(outbox{})
		proc.RegisterChannel(e.realtime)
		proc.RegisterChannel(e.push)
		t.Cleanup(func() { _ = e.realtime.Close() })
	}

	if !s.noStart {
		require.NoError(t, proc.Start(context.Background()))
		t.Cleanup(func() { _ = proc.Stop(context.Background()) })
	}

	a, err := api.New(d)
	require.NoError(t, err)
	e.handler = a.Router()
	return e
}

type reply struct {
	Data  json.RawMessage  `json:"data"`
	Meta  map[string]any   `json:"meta"`
	Error *api.ErrorDetail `json:"error"`
}

func (e *env) do(t *testing.T, method, path, body string) (int, reply) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out reply
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func seed(t *testing.T, repo *notifications.MemoryRepository, userID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repo.Create(context.Background(), notifications.Notification{
			ID:        id,
			UserID:    userID,
			Type:      notifications.TypeMention,
			Priority:  notifications.PriorityHigh,
			Title:     "Mentioned",
			Message:   "you were mentioned",
			Channels:  notifications.ChannelInApp,
			Status:    notifications.StatusSent,
			CreatedAt: time.Now(),
		}))
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := api.New(api.Deps{})
	assert.ErrorIs(t, err, api.ErrNilProcessor)

	proc, err := processor.New(processor.DefaultConfig(), notifications.NewMemoryRepository())
	require.NoError(t, err)
	_, err = api.New(api.Deps{Processor: proc})
	assert.ErrorIs(t, err, api.ErrNilRepository)
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := e.realtime.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)

	code, out := e.do(t, http.MethodPost, "/v1/notifications",
		`{"user_id":"u1","sender_id":"alice","type":"mention","title":"Hi","message":"hello","channels":["in_app"]}`)
	require.Equal(t, http.StatusAccepted, code)
	view := decode[api.SubmitView](t, out.Data)
	require.NotEmpty(t, view.ID)

	require.Eventually(t, func() bool {
		n, err := e.repo.Get(context.Background(), view.ID)
		return err == nil && n.Status == notifications.StatusSent
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNotificationRequest_Bundling(t *testing.T) {
	t.Parallel()

	off, on := false, true
	tests := []struct {
		name  string
		allow *bool
		want  bool
	}{
		{name: "unset", allow: nil, want: false},
		{name: "allowed", allow: &on, want: false},
		{name: "disallowed", allow: &off, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := api.NotificationRequest{UserID: "u1", Type: "like", Title: "x", AllowBundling: tt.allow}
			n, err := req.Notification()
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.DisableBundling)
		})
	}
}

func TestSubmit_Errors(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})

	tests := []struct {
		name    string
		body    string
		status  int
		code    string
		details []string
	}{
		{
			name:    "invalid fields",
			body:    `{"user_id":" ","type":"poke","priority":"loud","channels":["pigeon"]}`,
			status:  http.StatusUnprocessableEntity,
			code:    "validation_error",
			details: []string{"user_id", "type", "priority", "channels"},
		},
		{
			name:   "unknown field",
			body:   `{"user_id":"u1","type":"like","colour":"red"}`,
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "two values",
			body:   `{"user_id":"u1","type":"like"} {}`,
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "missing content",
			body:   `{"user_id":"u1","type":"mention"}`,
			status: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, out := e.do(t, http.MethodPost, "/v1/notifications", tt.body)
			assert.Equal(t, tt.status, code)
			if tt.code == "" {
				return
			}
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.code, out.Error.Code)
			for _, field := range tt.details {
				assert.Contains(t, out.Error.Details, field)
			}
		})
	}
}

func TestSubmit_EmptyBody(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	code, out := e.do(t, http.MethodPost, "/v1/notifications", "")
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, out.Error)
	assert.Equal(t, "bad_request", out.Error.Code)
}

func TestSubmit_NotRunning(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{noStart: true})
	code, out := e.do(t, http.MethodPost, "/v1/notifications", `{"user_id":"u1","type":"like","title":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, out.Error)
	assert.Equal(t, "not_running", out.Error.Code)
}

func TestSubmitBulk(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})

	code, out := e.do(t, http.MethodPost, "/v1/notifications/bulk", `{"notifications":[
		{"user_id":"u1","type":"follow","sender_id":"a","title":"Follow"},
		{"user_id":"u1","type":"nope"},
		{"id":"fixed","user_id":"u2","type":"follow","sender_id":"b","title":"Follow"}
	]}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.EqualValues(t, 2, out.Meta["accepted"])
	assert.EqualValues(t, 1, out.Meta["rejected"])

	items := decode[[]api.SubmitView](t, out.Data)
	require.Len(t, items, 3)
	assert.NotEmpty(t, items[0].ID)
	require.NotNil(t, items[1].Error)
	assert.Equal(t, "validation_error", items[1].Error.Code)
	assert.Equal(t, "fixed", items[2].ID)

	code, out = e.do(t, http.MethodPost, "/v1/notifications/bulk", `{"notifications":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "empty_bulk_request", out.Error.Code)
}

func TestSendImmediate(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, err := e.realtime.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)

	code, out := e.do(t, http.MethodPost, "/v1/notifications/immediate",
		`{"user_id":"u1","type":"mention","title":"Ping","message":"now","channels":["in_app"]}`)
	require.Equal(t, http.StatusOK, code)

	view := decode[api.OutcomeView](t, out.Data)
	assert.Equal(t, notifications.StatusSent, view.Status)
	require.Len(t, view.Channels, 1)
	assert.Equal(t, "in_app", view.Channels[0].Channel)
	assert.True(t, view.Channels[0].Success)

	select {
	case msg := <-session.Events():
		assert.Equal(t, realtime.KindNotification, msg.Data.Kind)
		assert.Equal(t, "Ping", msg.Data.Title)
	case <-time.After(time.Second):
		t.Fatal("session received nothing")
	}
}

func TestListAndMarkRead(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	seed(t, e.repo, "u1", "n1", "n2", "n3")
	seed(t, e.repo, "u2", "other")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, err := e.realtime.Connect(ctx, "u1", realtime.SessionOptions{})
	require.NoError(t, err)

	code, out := e.do(t, http.MethodGet, "/v1/users/u1/notifications?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]api.NotificationView](t, out.Data), 2)
	assert.EqualValues(t, 2, out.Meta["limit"])

	code, out = e.do(t, http.MethodPost, "/v1/users/u1/notifications/read", `{"ids":["n1","other","missing"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, api.ReadView{Marked: 1, Unread: 2}, decode[api.ReadView](t, out.Data))

	select {
	case msg := <-session.Events():
		assert.Equal(t, realtime.KindUnreadCount, msg.Data.Kind)
		assert.Equal(t, 2, msg.Data.Count)
	case <-time.After(time.Second):
		t.Fatal("unread count not published")
	}

	code, out = e.do(t, http.MethodGet, "/v1/users/u1/notifications?unread=true&types=mention", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]api.NotificationView](t, out.Data), 2)

	code, out = e.do(t, http.MethodGet, "/v1/users/u1/unread", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, decode[api.ReadView](t, out.Data).Unread)

	code, _ = e.do(t, http.MethodGet, "/v1/users/u1/notifications?types=poke", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = e.do(t, http.MethodPost, "/v1/users/u1/notifications/read", `{"ids":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, out.Error.Details, "ids")
}

func TestPreferences(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})

	code, out := e.do(t, http.MethodGet, "/v1/users/u1/preferences", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u1", decode[api.PreferencesView](t, out.Data).UserID)

	code, out = e.do(t, http.MethodPut, "/v1/users/u1/preferences", `{
		"channels": {"like": ["push", "in_app"]},
		"disabled": ["promotion"],
		"blocked_senders": ["spammer"],
		"quiet_hours": {"enabled": true, "start": 1320, "end": 420, "timezone": "UTC"},
		"hourly_limits": {"comment": 3}
	}`)
	require.Equal(t, http.StatusOK, code)
	view := decode[api.PreferencesView](t, out.Data)
	assert.ElementsMatch(t, []string{"in_app", "push"}, view.Channels["like"])
	assert.Equal(t, []notifications.Type{notifications.TypePromotion}, view.Disabled)
	assert.Equal(t, 3, view.HourlyLimits[notifications.TypeComment])

	stored, err := e.repo.GetPreferences(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, notifications.ChannelInApp|notifications.ChannelPush, stored.Channels[notifications.TypeLike])
	assert.True(t, stored.SenderBlocked("spammer"))

	code, out = e.do(t, http.MethodPut, "/v1/users/u1/preferences", `{"disabled":["poke"],"channels":{"like":["fax"]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, out.Error.Details, "disabled")
	assert.Contains(t, out.Error.Details, "channels")
}

func TestDevices(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})

	code, out := e.do(t, http.MethodPost, "/v1/users/u1/devices", `{"token":"tok-1","platform":"ios"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "tok-1", decode[push.Device](t, out.Data).Token)

	code, out = e.do(t, http.MethodGet, "/v1/users/u1/devices", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]push.Device](t, out.Data), 1)

	code, out = e.do(t, http.MethodPost, "/v1/users/u1/devices", `{"token":"tok-2","platform":"blackberry"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_platform", out.Error.Code)

	code, _ = e.do(t, http.MethodDelete, "/v1/users/u2/devices", `{"token":"tok-1"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodDelete, "/v1/users/u1/devices", `{"token":"tok-1"}`)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Empty(t, e.push.Registry().Devices("u1"))
}

func TestEmail(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})

	code, _ := e.do(t, http.MethodGet, "/v1/users/u1/email", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, out := e.do(t, http.MethodPut, "/v1/users/u1/email", `{"email":"u1@example.com"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u1@example.com", decode[email.Address](t, out.Data).Email)

	code, out = e.do(t, http.MethodPut, "/v1/users/u1/email", `{"email":"not-an-address"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_address", out.Error.Code)

	code, _ = e.do(t, http.MethodDelete, "/v1/users/u1/email", "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestChannelDisabled(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{noChannels: true})

	for _, tt := range []struct{ method, path, body string }{
		{http.MethodGet, "/v1/users/u1/devices", ""},
		{http.MethodPut, "/v1/users/u1/email", `{"email":"u1@example.com"}`},
		{http.MethodPost, "/v1/sessions/s1/ping", ""},
	} {
		code, out := e.do(t, tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusNotImplemented, code, tt.path)
		assert.Equal(t, "channel_disabled", out.Error.Code, tt.path)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := e.realtime.Connect(ctx, "u1", realtime.SessionOptions{ID: "s1"})
	require.NoError(t, err)

	code, _ := e.do(t, http.MethodPost, "/v1/sessions/s1/ping", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, out := e.do(t, http.MethodPost, "/v1/sessions/gone/ping", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session_not_found", out.Error.Code)
}

func TestStream(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	seed(t, e.repo, "u1", "n1")
	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/users/u1/stream?session_id=s1", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(substr string) {
		t.Helper()
		for lines.Scan() {
			if strings.Contains(lines.Text(), substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q", substr)
	}

	waitFor(`"sessionId":"s1"`)

	_, err = e.realtime.Publish(ctx, "u1", realtime.Event{
		Kind:           realtime.KindNotification,
		NotificationID: "n2",
		Type:           notifications.TypeMention,
		Title:          "<b>Hi</b>",
		Body:           "there",
	})
	require.NoError(t, err)
	waitFor(`notification-n2`)

	_, err = e.realtime.Publish(ctx, "u1", realtime.Event{Kind: realtime.KindUnreadCount, Count: 4})
	require.NoError(t, err)
	waitFor(`"unread":4`)
}

func TestStream_RequiresEventStream(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	code, out := e.do(t, http.MethodGet, "/v1/users/u1/stream", "")
	assert.Equal(t, http.StatusNotAcceptable, code)
	assert.Equal(t, "not_acceptable", out.Error.Code)
}

func TestStatsAndProbes(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{})
	seed(t, e.repo, "u1", "n1", "n2")

	code, out := e.do(t, http.MethodGet, "/v1/stats?window=1h", "")
	require.Equal(t, http.StatusOK, code)
	stats := decode[api.StatsView](t, out.Data)
	assert.Equal(t, "1h0m0s", stats.Window)
	assert.Equal(t, 2, stats.ByStatus[notifications.StatusSent])
	assert.Equal(t, 2, stats.ByType[notifications.TypeMention])

	code, _ = e.do(t, http.MethodGet, "/v1/stats?window=-1h", "")
	assert.Equal(t, http.StatusBadRequest, code)

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("test_http_requests_total")))
}

func TestReadyz_NotRunning(t *testing.T) {
	t.Parallel()

	e := newEnv(t, setup{noStart: true})
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
