// Package migration implements the migration engine and the migration
// policy.
//
// The engine moves a page's backing storage between tiers while
// preserving its virtual identity; on any failure after the destination
// is allocated it rolls back by freeing the destination and leaving the
// source untouched, so a failed migration is always invisible to the
// page's users. The policy is a pure scoring function over a tracked
// page's counters, with pressure and churn overrides layered on top.
package migration
