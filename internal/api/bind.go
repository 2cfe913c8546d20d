package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies; a bulk submit of a few thousand
// notifications fits comfortably.
const maxBodyBytes = 4 << 20

// BindJSON decodes the request body. Unknown fields are rejected so typos in
// client payloads surface instead of being ignored.
func BindJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return badRequest(errors.New("request body is required"))
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return HTTPError{Code: http.StatusRequestEntityTooLarge, Key: "body_too_large", Err: err}
		}
		return badRequest(fmt.Errorf("decode body: %w", err))
	}
	if dec.More() {
		return badRequest(errors.New("body must hold a single JSON value"))
	}
	return nil
}

// userScoped is implemented by requests that carry the {userID} path value.
type userScoped interface {
	setUserID(id string)
}

// BindUser copies the {userID} route parameter into requests that embed
// UserPath.
func BindUser(r *http.Request, v any) error {
	id := chi.URLParam(r, "userID")
	if id == "" {
		return badRequest(errors.New("user id is required"))
	}
	if u, ok := v.(userScoped); ok {
		u.setUserID(id)
	}
	return nil
}

// UserPath is embedded by requests addressed to /users/{userID}.
type UserPath struct {
	UserID string `json:"-"`
}

func (u *UserPath) setUserID(id string) { u.UserID = id }

// paged is implemented by requests that accept limit and offset.
type paged interface {
	setPage(limit, offset int)
}

// BindPage reads ?limit= and ?offset=, defaulting to 50 and capping at 200.
func BindPage(r *http.Request, v any) error {
	p, ok := v.(paged)
	if !ok {
		return nil
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 50)
	if err != nil {
		return badRequest(fmt.Errorf("limit: %w", err))
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		return badRequest(fmt.Errorf("offset: %w", err))
	}
	p.setPage(min(max(limit, 1), 200), max(offset, 0))
	return nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
