// Package connection is the HTTP client khm-preview-cli uses to reach
// khm-preview-server.
//
// Requests carry the API key in the X-API-Key-ID and X-API-Key headers.
// Responses use the server envelope {code, message, request_id, data};
// ParseResponse unwraps data on success and turns error envelopes into
// *APIError.
package connection
