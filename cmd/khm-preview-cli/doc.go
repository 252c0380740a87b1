// khm-preview-cli manages preview links on a khm-preview-server and
// prepares secrets for its configuration.
//
//   - token generate / token hash: offline token tools
//   - apikey hash: Argon2id hashes for auth.keys[]
//   - link create|get|active|list|revoke|extend: the link API
//   - secret rotate: replace the signing secret
//
// Usage:
//
//	khm-preview-cli [global flags] command [flags] [args]
//	khm-preview-cli -s http://127.0.0.1:8080 -k editor-1 -K kpas_... link create --post 42
//	khm-preview-cli apikey hash --generate --id editor-1 --role editor -o yaml
package main
