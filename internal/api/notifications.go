package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// SubmitView acknowledges a queued notification.
type SubmitView struct {
	Index int          `json:"index"`
	ID    string       `json:"id,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

func (a *API) submit(r *http.Request, req NotificationRequest) Response {
	n, err := req.Notification()
	if err != nil {
		return Fail(err)
	}
	id, err := a.Processor.Submit(r.Context(), n)
	if err != nil {
		return Fail(err)
	}
	return JSON(SubmitView{ID: id}, WithStatus(http.StatusAccepted))
}

// submitBulk answers 202 even when some items fail; each item carries its
// own result.
func (a *API) submitBulk(r *http.Request, req BulkRequest) Response {
	if len(req.Notifications) == 0 {
		return Fail(ErrEmptyBulkRequest)
	}

	out := make([]SubmitView, len(req.Notifications))
	valid := make([]notifications.Notification, 0, len(req.Notifications))
	index := make([]int, 0, len(req.Notifications))
	for i, item := range req.Notifications {
		out[i].Index = i
		n, err := item.Notification()
		if err != nil {
			out[i].Error = classify(err).detail
			continue
		}
		valid = append(valid, n)
		index = append(index, i)
	}

	accepted := 0
	for j, res := range a.Processor.SubmitBulk(r.Context(), valid) {
		i := index[j]
		out[i].ID = res.ID
		if res.Err != nil {
			out[i].Error = classify(res.Err).detail
			continue
		}
		accepted++
	}

	return JSON(out, WithStatus(http.StatusAccepted), WithMeta(map[string]any{
		"accepted": accepted,
		"rejected": len(out) - accepted,
	}))
}

// OutcomeView reports a synchronous delivery.
type OutcomeView struct {
	ID       string               `json:"id"`
	Status   notifications.Status `json:"status"`
	Attempts int                  `json:"attempts"`
	Reason   string               `json:"reason,omitempty"`
	Channels []ChannelView        `json:"channels,omitempty"`
}

// ChannelView is the per-channel part of OutcomeView.
type ChannelView struct {
	Channel  string `json:"channel"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Targets  int    `json:"targets"`
	Error    string `json:"error,omitempty"`
}

func viewOutcome(o dispatcher.Outcome) OutcomeView {
	v := OutcomeView{
		ID:       o.NotificationID,
		Status:   o.Status,
		Attempts: o.Attempts,
		Reason:   o.Reason,
	}
	for _, c := range o.Channels {
		cv := ChannelView{
			Channel:  c.Channel.String(),
			Success:  c.Success,
			Attempts: c.Attempts,
			Targets:  len(c.Results),
		}
		if c.Err != nil {
			cv.Error = c.Err.Error()
		}
		v.Channels = append(v.Channels, cv)
	}
	return v
}

func (a *API) sendImmediate(r *http.Request, req NotificationRequest) Response {
	n, err := req.Notification()
	if err != nil {
		return Fail(err)
	}
	out, err := a.Processor.SendImmediate(r.Context(), n)
	if err != nil {
		return Fail(err)
	}
	return JSON(viewOutcome(out))
}

// bindListFilter reads ?unread=true and ?types=like,follow.
func bindListFilter(r *http.Request, v any) error {
	req, ok := v.(*ListRequest)
	if !ok {
		return nil
	}
	q := r.URL.Query()
	if s := q.Get("unread"); s != "" {
		unread, err := strconv.ParseBool(s)
		if err != nil {
			return badRequest(errors.New("unread must be a boolean"))
		}
		req.OnlyUnread = unread
	}
	types, err := parseTypes(q.Get("types"))
	if err != nil {
		return err
	}
	req.Types = types
	return nil
}

func parseTypes(s string) ([]notifications.Type, error) {
	if s == "" {
		return nil, nil
	}
	var out []notifications.Type
	for _, name := range strings.Split(s, ",") {
		t := notifications.Type(strings.TrimSpace(name))
		if !t.Valid() {
			return nil, badRequest(errors.New("unknown notification type " + string(t)))
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *API) list(r *http.Request, req ListRequest) Response {
	ns, err := a.Repository.ListForUser(r.Context(), req.UserID, notifications.ListOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		OnlyUnread: req.OnlyUnread,
		Types:      req.Types,
	})
	if err != nil {
		return Fail(err)
	}

	views := make([]NotificationView, 0, len(ns))
	for _, n := range ns {
		views = append(views, viewNotification(n))
	}
	return JSON(views, WithMeta(map[string]any{
		"limit":  req.Limit,
		"offset": req.Offset,
		"count":  len(views),
	}))
}

// ReadView reports the effect of a mark-as-read call.
type ReadView struct {
	Marked int `json:"marked"`
	Unread int `json:"unread"`
}

// markRead updates storage, then pushes the new unread count to live
// sessions and the badge of the user's devices.
func (a *API) markRead(r *http.Request, req ReadRequest) Response {
	if len(req.IDs) == 0 {
		errs := ValidationError{}
		errs.Add("ids", "at least one id is required")
		return Fail(errs)
	}

	ctx := r.Context()
	marked, err := a.Repository.MarkAsRead(ctx, req.UserID, req.IDs...)
	if err != nil {
		return Fail(err)
	}
	unread, err := a.Repository.CountUnread(ctx, req.UserID)
	if err != nil {
		return Fail(err)
	}

	if marked > 0 {
		a.publishUnread(r, req.UserID, unread)
	}
	return JSON(ReadView{Marked: marked, Unread: unread})
}

func (a *API) unread(r *http.Request, req UserPath) Response {
	unread, err := a.Repository.CountUnread(r.Context(), req.UserID)
	if err != nil {
		return Fail(err)
	}
	return JSON(ReadView{Unread: unread})
}
