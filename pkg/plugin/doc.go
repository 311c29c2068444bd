// Package plugin implements Katalog's plugin registry and actor
// identity: locating source/processor/analyzer/editor/exporter
// implementations by a string plugin id, computing the stable
// identity hash that collapses actors with equal type+plugin+config,
// and caching one instance per logical actor for the life of the
// process.
package plugin
