// Package postgres implements store.Store on PostgreSQL using pgx/v5.
//
// Jobs are claimed with a single UPDATE whose target row is chosen by a
// sub-select with FOR UPDATE SKIP LOCKED, so concurrent workers never
// block on or double-claim the same row. State transitions are
// conditional UPDATEs on the current status.
//
// Schema lives in embedded SQL files applied by [Store.Migrate] and
// tracked in the nocode_migrations table.
package postgres
