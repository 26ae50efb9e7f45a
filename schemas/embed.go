// Package schemas provides the embedded SQL schema for the dream journal store.
package schemas

import _ "embed"

// Dreams creates the dreams and emotions tables. Every statement is
// idempotent so it can run on each process start.
//
//go:embed dreams.sql
var Dreams string
