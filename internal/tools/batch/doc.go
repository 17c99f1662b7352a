// Package batch provides per-id outcome tracking for batch mutations.
//
// Batch label and read-state changes are applied one message at a time so a
// failure on one id never aborts the rest. The helpers here collect exactly
// one outcome per submitted id and summarize them for tool results.
package batch
