// Package store provides a SQLite-backed job repository.
//
// Store implements jobs.Repository with one row per job in the jobs table.
// Create inserts and refuses an existing id; Save is an upsert of the whole
// record, matching the read-modify-write contract of the file repository.
//
// # Ordering
//
// List orders by job_id DESC COLLATE BINARY. Job ids embed a microsecond UTC
// stamp, so for one DAG this is most recent first; across DAGs the DAG name
// prefix sorts first, exactly as file names do in the file repository.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
