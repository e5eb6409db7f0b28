// Package engine runs a fixed batch of health checks in parallel worker
// processes under a single global deadline. It dispatches tasks to a bounded
// pool, polls for completions, kills every outstanding worker once the
// deadline passes, and reassembles per-task results in input order. Runs can
// be recorded in the store and observed live through the event broker.
package engine
