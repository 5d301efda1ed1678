// Package index caches every provenance entry below a data root in SQLite
// for queries across folders ("every failed evocube run since Monday").
//
// The info.json files stay authoritative. Rebuild drops and refills the
// entries table from them in one transaction; nothing writes the index
// incrementally.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during a rebuild
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - schema version tracked in PRAGMA user_version
package index
