// Package postgres stores the mail queue in a PostgreSQL table through pgx.
//
// A claim is one UPDATE whose target row is picked by a SELECT ... FOR UPDATE
// SKIP LOCKED subquery, so concurrent dispatchers never wait on or share a row.
package postgres
