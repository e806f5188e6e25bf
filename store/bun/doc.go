// Package bunstore implements store.Store using the Bun ORM with the
// PostgreSQL dialect.
//
// The caller owns the *bun.DB lifecycle; bunstore never closes it:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	if err := s.Migrate(ctx); err != nil { ... }
//
// The schema is created from the model structs, so it tracks the Go types
// rather than a directory of SQL files.
package bunstore
