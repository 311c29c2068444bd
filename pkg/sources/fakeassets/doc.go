// Package fakeassets implements a deterministic synthetic source
// plugin: it generates a reproducible population of fake files (no
// filesystem or network access) for exercising the scan runtime,
// processor pipeline and query layer without an external system to
// configure.
package fakeassets
