package migrations

import "embed"

// FS holds the CockroachDB schema files, applied in name order.
//
//go:embed *.sql
var FS embed.FS
