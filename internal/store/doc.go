// Package store persists inspections, reminders, contacts and message
// templates.
//
// The only backend is SQLite (modernc.org/sqlite, pure Go). The schema is
// embedded and applied on open; rows are soft-deleted via deleted_at so
// uniqueness checks ignore tombstones.
package store
