// Package redis stores KHM Preview options in Redis.
//
// Creation uses SETNX, so concurrent server instances sharing one Redis
// agree on a single preview secret.
package redis
