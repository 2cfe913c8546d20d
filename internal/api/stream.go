package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// ListSelector is the element new notifications are prepended to.
const ListSelector = "#notifications"

// bindStream reads ?session_id= and ?types= and insists on an event stream.
func bindStream(r *http.Request, v any) error {
	req, ok := v.(*StreamRequest)
	if !ok {
		return nil
	}
	if !isEventStream(r) {
		return HTTPError{
			Code: http.StatusNotAcceptable,
			Key:  "not_acceptable",
			Err:  errors.New("stream requires Accept: text/event-stream"),
		}
	}
	types, err := parseTypes(r.URL.Query().Get("types"))
	if err != nil {
		return err
	}
	req.SessionID = r.URL.Query().Get("session_id")
	req.Types = types
	return nil
}

func isEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		r.URL.Query().Has("datastar")
}

func (a *API) stream(_ *http.Request, req StreamRequest) Response {
	if a.Realtime == nil {
		return Fail(ErrChannelDisabled)
	}
	return &streamResponse{api: a, req: req}
}

// streamResponse holds a realtime session open as a Datastar SSE stream.
// Notifications are prepended to ListSelector as HTML; counters travel as
// signals.
type streamResponse struct {
	api *API
	req StreamRequest
}

func (s *streamResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if _, ok := w.(http.Flusher); !ok {
		return ErrStreamingFailed
	}

	ctx := r.Context()
	rt := s.api.Realtime
	session, err := rt.Connect(ctx, s.req.UserID, realtime.SessionOptions{
		ID:    s.req.SessionID,
		Types: s.req.Types,
	})
	if err != nil {
		return err
	}
	defer rt.Disconnect(session.ID())

	log := s.api.Logger.With(
		logger.UserID(s.req.UserID),
		slog.String("session_id", session.ID()),
	)

	sse := datastar.NewSSE(w, r)
	signals := map[string]any{"sessionId": session.ID()}
	if unread, err := s.api.Repository.CountUnread(ctx, s.req.UserID); err == nil {
		signals["unread"] = unread
	}
	if err := patchSignals(sse, signals); err != nil {
		log.LogAttrs(ctx, slog.LevelDebug, "stream closed before first frame", logger.Error(err))
		return nil
	}

	heartbeat := time.NewTicker(s.api.Heartbeat)
	defer heartbeat.Stop()
	events := session.Events()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := rt.Ping(session.ID()); err != nil {
				// Cleanup retired the session; the client reconnects.
				return nil
			}
			if err := patchSignals(sse, map[string]any{"heartbeat": time.Now().Unix()}); err != nil {
				return nil
			}
		case msg, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(sse, msg.Data); err != nil {
				log.LogAttrs(ctx, slog.LevelDebug, "stream write failed", logger.Error(err))
				return nil
			}
		}
	}
}

func writeEvent(sse *datastar.ServerSentEventGenerator, e realtime.Event) error {
	switch e.Kind {
	case realtime.KindNotification:
		return sse.PatchElementTempl(notificationItem(e),
			datastar.WithSelector(ListSelector),
			datastar.WithMode(datastar.ElementPatchModePrepend),
		)
	case realtime.KindUnreadCount:
		return patchSignals(sse, map[string]any{"unread": e.Count})
	case realtime.KindRead:
		return patchSignals(sse, map[string]any{"lastRead": e.NotificationID})
	default:
		return patchSignals(sse, map[string]any{"event": e})
	}
}

func patchSignals(sse *datastar.ServerSentEventGenerator, signals map[string]any) error {
	data, err := json.Marshal(signals)
	if err != nil {
		return err
	}
	return sse.PatchSignals(data)
}

// notificationItem renders one list entry.
func notificationItem(e realtime.Event) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		title := templ.EscapeString(e.Title)
		if e.ActionURL != "" {
			title = fmt.Sprintf(`<a href="%s">%s</a>`, templ.EscapeString(e.ActionURL), title)
		}
		_, err := fmt.Fprintf(w,
			`<li id="notification-%s" class="notification notification-%s" data-type="%s"><strong>%s</strong><p>%s</p></li>`,
			templ.EscapeString(e.NotificationID),
			templ.EscapeString(e.Priority),
			templ.EscapeString(string(e.Type)),
			title,
			templ.EscapeString(e.Body),
		)
		return err
	})
}

func (a *API) ping(r *http.Request, _ struct{}) Response {
	if a.Realtime == nil {
		return Fail(ErrChannelDisabled)
	}
	if err := a.Realtime.Ping(chi.URLParam(r, "sessionID")); err != nil {
		return Fail(err)
	}
	return NoContent()
}
