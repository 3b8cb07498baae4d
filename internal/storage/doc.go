// Package storage persists the schedule collection.
//
// Every driver stores the full, ordered collection and replaces it atomically
// on Save: the file driver via temp file + rename, SQL drivers inside a
// transaction, redis inside MULTI/EXEC. Readers never observe a half-written
// collection.
//
// Drivers:
//   - file: JSON snapshot (default)
//   - csv: the legacy schedules.csv layout
//   - sqlite: modernc.org/sqlite (pure Go)
//   - postgres: sqlx + lib/pq
//   - redis: go-redis list + hash
package storage
