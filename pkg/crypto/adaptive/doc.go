// Package adaptive seals small values at rest with an AEAD cipher.
//
// AES-256-GCM is used where the platform has hardware AES support,
// ChaCha20-Poly1305 elsewhere. Keys are derived from an operator supplied
// passphrase with HKDF-SHA256, so the same passphrase always opens values
// sealed by a previous process.
//
// Sealed values carry a one byte algorithm tag followed by nonce and
// ciphertext, so a store written on one architecture can be read on another.
package adaptive
