package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/processor"
)

// StatsView combines live processor counters with stored totals.
type StatsView struct {
	Processor processor.Stats              `json:"processor"`
	Window    string                       `json:"window"`
	ByStatus  map[notifications.Status]int `json:"by_status"`
	ByType    map[notifications.Type]int   `json:"by_type"`
}

// stats accepts ?window=1h; stored totals default to the last 24 hours.
func (a *API) stats(r *http.Request, _ struct{}) Response {
	window := 24 * time.Hour
	if s := r.URL.Query().Get("window"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return Fail(badRequest(errors.New("window must be a positive duration")))
		}
		window = d
	}

	ctx := r.Context()
	since := time.Now().Add(-window)
	byStatus, err := a.Repository.CountByStatus(ctx, since)
	if err != nil {
		return Fail(err)
	}
	byType, err := a.Repository.CountByType(ctx, since)
	if err != nil {
		return Fail(err)
	}

	return JSON(StatsView{
		Processor: a.Processor.Stats(),
		Window:    window.String(),
		ByStatus:  byStatus,
		ByType:    byType,
	})
}
