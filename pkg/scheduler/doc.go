// Package scheduler runs the repository jobs that keep stored
// notifications moving: releasing parked ones whose scheduled time arrived
// and cancelling pending ones that expired. Jobs run on
// github.com/robfig/cron/v3 in the configured time zone.
package scheduler
