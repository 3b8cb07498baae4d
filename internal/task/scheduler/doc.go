// Package scheduler turns schedules into cron triggers.
//
// It owns one *cron.Cron and a live map of schedule id → entry. It only
// computes trigger times and enqueues firings into the task engine; the
// firing itself runs on an engine worker, never on the cron goroutine.
package scheduler
