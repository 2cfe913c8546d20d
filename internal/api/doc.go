// Package api exposes the notification engine over HTTP.
//
// Handlers are typed: each route declares a request struct, a list of
// binders that fill it from the body, path and query, and returns a
// Response. Errors are classified into an HTTP status and a stable error
// code and written as
//
//	{"error": {"code": "queue_full", "message": "..."}}
//
// Successful responses wrap their payload in {"data": ...}.
//
// The realtime stream at /v1/users/{userID}/stream speaks Datastar SSE:
// notifications are prepended to the #notifications element and counters
// are sent as signals.
package api
