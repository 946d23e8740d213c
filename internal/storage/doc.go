// Package storage provides the SQLite-backed repositories for agency records,
// the embedded schema migrations, and the application-level referential
// integrity checks that guard every delete.
package storage
