// Package session implements the interactive upload conversation:
// a per-user state machine that accumulates incoming files into
// batches, lets the user pick or type a destination folder in the
// remote tree, and hands the confirmed batch to the upload pipeline.
//
// All state lives in memory. A process restart loses in-flight
// sessions; users recover by resending their files.
package session
