package migrations

import "embed"

// PostgresFS holds the ledger schema: catalog, ledger tables, checkpoint and revenue.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the revenue audit mirror schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
