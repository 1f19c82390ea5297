// Package hint implements the Hint/Tuning API: the external entry
// points that pin regions hot or cold, change the active migration
// profile, and force an immediate migration. It is a thin facade over
// pkg/tracker and pkg/migration, holding no state of its own beyond the
// active profile and per-process priority overrides.
package hint
