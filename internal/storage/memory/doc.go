// Package memory provides a volatile KVEngine for KHM Preview.
//
// Values live in a sharded concurrent map. Nothing survives a restart,
// so a server using this engine creates a fresh preview secret on every
// start and all previously issued links stop verifying.
package memory
