// Package store implements persistence for the auth core on SQLite.
//
// Every single-use credential (magic link, authorization code, refresh
// token) is consumed by one conditional UPDATE whose WHERE clause matches
// the unused, unexpired row; RowsAffected is the success signal. Two
// concurrent redemptions of the same credential therefore race safely:
// exactly one observes success.
package store

import "time"

// sqlTimeFormat matches SQLite's datetime('now') output so stored expiries
// compare correctly against it.
const sqlTimeFormat = "2006-01-02 15:04:05"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqlTimeFormat)
}
