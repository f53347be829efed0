// Package http serves the local agent API and the read-only query surface.
//
// Handlers stay thin. They decode and validate requests, call the licensing,
// catalog and session layers, and map errors with apperrors.RenderError.
// Installs and uninstalls return 202 at once; progress is delivered over the
// /api/events websocket.
package http
