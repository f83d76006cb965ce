//go:build cgo
// +build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriver = "sqlite3"

// dsnParams enables WAL for file databases opened through mattn/go-sqlite3.
const dsnParams = "?_journal_mode=WAL&_foreign_keys=off&_busy_timeout=5000"
