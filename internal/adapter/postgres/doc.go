// Package postgres implements the linked-account credential store on PostgreSQL.
//
// Connect opens a pgx pool with query metrics; RunMigrationsWithLock applies the embedded
// tern migrations under an advisory lock.
package postgres
