package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/channels/email"
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func (a *API) getPreferences(r *http.Request, req UserPath) Response {
	p, err := a.Repository.GetPreferences(r.Context(), req.UserID)
	if errors.Is(err, notifications.ErrPreferencesNotFound) {
		return JSON(viewPreferences(notifications.DefaultPreferences(req.UserID)))
	}
	if err != nil {
		return Fail(err)
	}
	return JSON(viewPreferences(*p))
}

func (a *API) savePreferences(r *http.Request, req PreferencesRequest) Response {
	p, err := req.Preferences()
	if err != nil {
		return Fail(err)
	}
	if err := a.Repository.SavePreferences(r.Context(), p); err != nil {
		return Fail(err)
	}
	stored, err := a.Repository.GetPreferences(r.Context(), req.UserID)
	if err != nil {
		return Fail(err)
	}
	return JSON(viewPreferences(*stored))
}

func (a *API) listDevices(_ *http.Request, req UserPath) Response {
	if a.Push == nil {
		return Fail(ErrChannelDisabled)
	}
	return JSON(a.Push.Registry().Devices(req.UserID))
}

func (a *API) registerDevice(_ *http.Request, req DeviceRequest) Response {
	if a.Push == nil {
		return Fail(ErrChannelDisabled)
	}
	d, err := a.Push.Registry().Register(req.Device())
	if err != nil {
		return Fail(err)
	}
	return JSON(d, WithStatus(http.StatusCreated))
}

// unregisterDevice only removes tokens owned by the addressed user.
func (a *API) unregisterDevice(_ *http.Request, req TokenRequest) Response {
	if a.Push == nil {
		return Fail(ErrChannelDisabled)
	}
	reg := a.Push.Registry()
	d, ok := reg.Device(req.Token)
	if !ok || d.UserID != req.UserID {
		return Fail(push.ErrDeviceNotFound)
	}
	if err := reg.Unregister(req.Token); err != nil {
		return Fail(err)
	}
	return NoContent()
}

func (a *API) getEmail(_ *http.Request, req UserPath) Response {
	if a.Email == nil {
		return Fail(ErrChannelDisabled)
	}
	addr, ok := a.Email.Directory().Get(req.UserID)
	if !ok {
		return Fail(email.ErrAddressNotFound)
	}
	return JSON(addr)
}

func (a *API) setEmail(_ *http.Request, req EmailRequest) Response {
	if a.Email == nil {
		return Fail(ErrChannelDisabled)
	}
	addr, err := a.Email.Directory().Set(req.UserID, req.Email)
	if err != nil {
		return Fail(err)
	}
	return JSON(addr)
}

func (a *API) removeEmail(_ *http.Request, req UserPath) Response {
	if a.Email == nil {
		return Fail(ErrChannelDisabled)
	}
	a.Email.Directory().Remove(req.UserID)
	return NoContent()
}

// publishUnread fans the unread count out to live sessions and device
// badges. Failures only affect freshness, so they are logged and dropped.
func (a *API) publishUnread(r *http.Request, userID string, unread int) {
	if a.Push != nil {
		a.Push.Registry().SetBadge(userID, unread)
	}
	if a.Realtime == nil {
		return
	}

	ctx := r.Context()
	_, err := a.Realtime.Publish(ctx, userID, realtime.Event{
		Kind:   realtime.KindUnreadCount,
		UserID: userID,
		Count:  unread,
	})
	if err != nil && !errors.Is(err, realtime.ErrNoListener) {
		a.Logger.LogAttrs(ctx, slog.LevelWarn, "unread count not published",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
}
