// Package txmgr implements the Transaction Manager: a thin layer over
// pkg/journal that
// stages block writes in memory and, on commit, classifies each staged
// block as metadata or data via a FilesystemDriver hook and routes it
// through the journal before the journal's own commit.
package txmgr
