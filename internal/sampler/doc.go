// Package sampler runs the periodic OCR sampling loop.
//
// A Loop is either Idle or Running. Start arms a timer that fires every
// interval (1 to 600 seconds); each firing runs one sampling cycle:
//
//	frame -> crop to region -> preprocess -> OCR -> extract -> filter -> dispatch
//
// At most one cycle runs at a time. Timer firings that arrive while a cycle is
// in flight are skipped, not queued, so a slow OCR engine can never cause
// overlapping or reordered dispatches. TriggerOnce runs a cycle on demand and
// waits for any in-flight cycle to finish first.
//
// Processing parameters, language, region, filter and sink target are copied
// at the start of each cycle. Changing them affects the next cycle only.
//
// Every cycle ends in exactly one Outcome. Failures at any stage, including
// panics, become outcomes; nothing escapes the loop and the next tick runs
// normally. Outcomes are logged, kept in a bounded history, passed to an
// optional Observer and broadcast to subscribers.
package sampler
