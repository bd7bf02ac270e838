// Package persist provides durability-hook implementations for the
// message bus.
//
// # Overview
//
// Each archive satisfies bus.Persister and adds its own read side. The
// bus invokes the hook once per published message, outside its lock; a
// persist failure is logged by the bus and never rolls back the
// in-memory publish, so archives are best-effort by contract.
//
//   - Memory: in-process slice, ordered, for tests and short-lived runs.
//   - SQLite: durable archive with FTS5 full-text search over sender,
//     recipient, type, and payload.
//   - Index: Bleve full-text index with scored search hits.
//   - Multi: fan-out to several persisters; every persister sees every
//     message even when an earlier one fails.
//
// # Wiring
//
//	archive, err := persist.NewSQLite(persist.SQLiteConfig{Path: "bus.db"})
//	if err != nil { ... }
//	defer archive.Close()
//
//	cfg := bus.DefaultConfig()
//	cfg.Persister = archive
//	b := bus.New(cfg)
//
// Messages are stored in their wire form (see the bus codec), so a
// rehydrated message round-trips exactly.
package persist
