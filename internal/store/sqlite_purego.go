//go:build !cgo
// +build !cgo

package store

import (
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

// dsnParams mirrors the cgo pragmas using modernc.org/sqlite's _pragma syntax.
const dsnParams = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)"
