// Package postgres stores KHM Preview options in PostgreSQL.
//
// Several server instances pointed at the same database agree on one
// preview secret: creation uses INSERT ... ON CONFLICT DO NOTHING followed
// by a fresh read, so every racer returns the row that won.
package postgres
