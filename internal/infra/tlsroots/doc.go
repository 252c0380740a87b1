// Package tlsroots loads TLS material for both ends of the admin API.
//
//   - roots.go: CA pools for clients talking to a server with a private CA
//   - certs.go: a serving certificate that reloads when its files change
package tlsroots
