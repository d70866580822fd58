// Package jobs runs the in-process job scheduler: named one-shot timers for
// reminder sends and cron entries for recurring maintenance (the daily
// sweep). Jobs are identified by name; registering a name again replaces the
// previous job. Fired jobs execute on a small worker pool with panic
// recovery, and a failing job never takes the scheduler down.
//
// State is in-memory only. On restart, pending one-shot jobs are rebuilt
// from persisted reminders by the reload scan.
package jobs
