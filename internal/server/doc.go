// Package server implements the MCP (Model Context Protocol) control surface
// for the temperature sampler.
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line on stdin and
// one response per line on stdout. Logs go to stderr.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Sampling loop:
//   - sampler_start: Arm the timer (re-arms when already running)
//   - sampler_stop: Disarm the timer
//   - sampler_trigger: Run one cycle now and return its outcome
//   - sampler_status: State, configuration and last outcome
//
// Configuration:
//   - sampler_set_params: Partial update of processing parameters
//   - sampler_set_sink: Storage or network target
//   - sampler_set_region: OCR region in frame coordinates
//   - sampler_set_language: Tesseract language
//
// History:
//   - sampler_recent_readings: Stored readings, newest first
//   - sampler_outcomes: Recent cycle outcomes
//
// Inspection:
//   - reading_extract: Run an extraction policy on arbitrary text
//   - region_preview: Processed region as PNG with pixel statistics
//   - region_ocr: OCR the region once without dispatching
//   - frame_preview: Frame with the region outlined and a coordinate grid
//   - ocr_info: OCR engine availability
//
// Storage:
//   - storage_connect, storage_disconnect, storage_test
//
// # Error Handling
//
// Tool failures, including sampler precondition failures, are returned as
// JSON-RPC errors with code -32000 and the Go error string as data. Outcomes
// of sampling cycles are results, not errors: a trigger that finds no number
// in the OCR text succeeds and reports kind "extraction_failed".
package server
