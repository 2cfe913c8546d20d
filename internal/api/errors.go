package api

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sort"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/channels/email"
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
)

var (
	ErrNilProcessor     = errors.New("api: processor is required")
	ErrNilRepository    = errors.New("api: repository is required")
	ErrChannelDisabled  = errors.New("channel is not enabled on this server")
	ErrStreamingFailed  = errors.New("response writer does not support streaming")
	ErrEmptyBulkRequest = errors.New("bulk request has no notifications")
)

// HTTPError carries an explicit status code and a machine-readable key.
type HTTPError struct {
	Code int
	Key  string
	Err  error
}

func (e HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Key
}

func (e HTTPError) Unwrap() error { return e.Err }

func badRequest(err error) error {
	return HTTPError{Code: http.StatusBadRequest, Key: "bad_request", Err: err}
}

// ValidationError maps request fields to their problems.
type ValidationError map[string][]string

func (v ValidationError) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Err returns v as an error, or nil when no field failed.
func (v ValidationError) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for field, msgs := range v {
		fields = append(fields, fmt.Sprintf("%s: %s", field, strings.Join(msgs, ", ")))
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, "; ")
}

// errorInfo is the classified form of an error.
type errorInfo struct {
	status int
	detail *ErrorDetail
	level  slog.Level
}

// statusFor maps domain sentinels to HTTP statuses and error codes.
var statusFor = []struct {
	err    error
	status int
	code   string
}{
	{processor.ErrQueueFull, http.StatusTooManyRequests, "queue_full"},
	{processor.ErrNotRunning, http.StatusServiceUnavailable, "not_running"},
	{processor.ErrAlreadyQueued, http.StatusConflict, "already_queued"},
	{processor.ErrInvalidRule, http.StatusBadRequest, "invalid_rule"},
	{notifications.ErrNotificationNotFound, http.StatusNotFound, "notification_not_found"},
	{notifications.ErrPreferencesNotFound, http.StatusNotFound, "preferences_not_found"},
	{notifications.ErrDuplicateID, http.StatusConflict, "duplicate_id"},
	{notifications.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{notifications.ErrValidation, http.StatusUnprocessableEntity, "invalid_notification"},
	{notifications.ErrInvalidPreferences, http.StatusUnprocessableEntity, "invalid_preferences"},
	{notifications.ErrUnknownChannel, http.StatusBadRequest, "unknown_channel"},
	{notifications.ErrUnknownPriority, http.StatusBadRequest, "unknown_priority"},
	{push.ErrDeviceNotFound, http.StatusNotFound, "device_not_found"},
	{push.ErrInvalidDevice, http.StatusUnprocessableEntity, "invalid_device"},
	{push.ErrUnknownPlatform, http.StatusBadRequest, "unknown_platform"},
	{email.ErrInvalidAddress, http.StatusUnprocessableEntity, "invalid_address"},
	{email.ErrAddressNotFound, http.StatusNotFound, "address_not_found"},
	{realtime.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{realtime.ErrClosed, http.StatusServiceUnavailable, "realtime_closed"},
	{ErrChannelDisabled, http.StatusNotImplemented, "channel_disabled"},
	{ErrEmptyBulkRequest, http.StatusBadRequest, "empty_bulk_request"},
}

func classify(err error) errorInfo {
	info := errorInfo{
		status: http.StatusInternalServerError,
		detail: &ErrorDetail{Code: "internal_error", Message: "internal server error"},
	}

	var (
		valErr  ValidationError
		httpErr HTTPError
	)
	switch {
	case errors.As(err, &valErr):
		info.status = http.StatusUnprocessableEntity
		info.detail = &ErrorDetail{Code: "validation_error", Message: "request validation failed", Details: maps.Clone(valErr)}
	case errors.As(err, &httpErr):
		info.status = httpErr.Code
		info.detail = &ErrorDetail{Code: httpErr.Key, Message: err.Error()}
	default:
		for _, s := range statusFor {
			if errors.Is(err, s.err) {
				info.status = s.status
				info.detail = &ErrorDetail{Code: s.code, Message: err.Error()}
				break
			}
		}
	}

	info.level = slog.LevelError
	if info.status < http.StatusInternalServerError {
		info.level = slog.LevelWarn
	}
	return info
}
