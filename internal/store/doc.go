// Package store provides a SQLite-backed XML record store for the query
// core.
//
// Records are XML documents stored in named collections. On insert, every
// child value of the record element is written to record_values:
//
//   - Element children by path relative to the record ("title", "author/name")
//   - Attributes by "@name" ("@id", "author/@id")
//
// Each value row keeps the text and, when the text reads as a double, its
// numeric value. The Store implements expr.IndexProvider (cost estimates and
// index-access leaves) and expr.Collections (full scans).
//
// # Critical Patterns
//
// CP-1: Record Order Is Document Order
//   - Records are returned ORDER BY id ASC
//   - Index access and scan produce the same order for the same records
//
// CP-2: Parameterized Statements
//   - All SQL comes from querysql.SQLCompiler with bound parameters
//
// CP-3: Estimates Are Cached Per Descriptor
//   - Keyed by index.Key, dropped on every insert
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Value rows cascade with their record
package store
