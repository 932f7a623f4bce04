// Package server implements the secureqr HTTP API.
//
// Routes:
//
//	POST /upload   multipart/form-data with a "qr_image" file field
//	POST /decode   JSON {"data": "<base-10 QR text>"}
//	GET  /healthz  liveness probe
//	GET  /metrics  Prometheus exposition (when enabled)
//
// Successful decodes answer 200 with {"decoded_data": {...}}. Every client
// error answers with {"error": "<message>"}; the messages are stable and
// safe to match on.
package server
