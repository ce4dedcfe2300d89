// Package mysql provides the connection pool, embedded schema migrations and
// the MySQL-backed turn transcript archive.
package mysql
