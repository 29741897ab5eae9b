// Package harvest implements the bounded, hierarchical fetch-and-persist
// pipeline. A Coordinator admits WorkUnits through a Gate; each unit's
// Pipeline fetches a top-level document, extracts Identifiers, plans child
// DownloadTargets, and streams every target to storage concurrently.
//
// Failures are isolated to the smallest scope that can absorb them: a failed
// target is recorded and skipped, a failed document fails its unit, and no
// unit failure stops the run. Every outcome is reported in the Summary.
package harvest
