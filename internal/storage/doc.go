// Package storage provides persistence for KHM Preview.
//
// A KVEngine holds everything the service stores: site options (including
// the preview signing secret), preview links with their digest and post
// indexes, and recorded hits. Two engines are provided:
//
//   - BadgerEngine: durable embedded storage (dgraph-io/badger)
//   - memory.Engine: volatile storage for tests and single-run setups
//
// On top of the engine sit OptionStore, EncryptedOptions and LinkStore.
// The postgres and redis subpackages provide alternative option stores
// for deployments that share the secret between several instances.
//
// Key layout:
//
//	opt/<name>                   option value
//	link/<id>                    JSON encoded PreviewLink
//	digest/<token_hash>          link id
//	post/<post_id>/<id>          empty marker, post index
//	hit/<link_id>/<hit_id>       JSON encoded Hit
package storage
