// khm-preview-server issues and checks preview links for unpublished
// posts.
//
// It serves:
//
//   - the link API (/links, /posts/{post_id}/link) for editors
//   - the public preview check (/preview)
//   - secret rotation under /admin/v1
//   - health, readiness and Prometheus metrics
//
// Usage:
//
//	khm-preview-server [flags]
//	khm-preview-server -config /etc/khm-preview/server.yaml
//
// Environment variables prefixed with KHMPREVIEW_ override the file, with
// "__" separating sections (KHMPREVIEW_LOG__LEVEL=debug).
package main
