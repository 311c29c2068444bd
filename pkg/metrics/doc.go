/*
Package metrics provides Prometheus metrics collection and exposition for
katalogd.

Metrics are registered at package init against the default Prometheus
registry and exposed over HTTP for scraping.

# Metrics Catalog

Changeset Metrics:

katalog_changesets_total{status}:
  - Type: Counter
  - Description: Total changesets by final status (completed, partial, canceled, skipped, error)

katalog_changeset_duration_seconds:
  - Type: Histogram
  - Description: Time from begin to finalize for a changeset

katalog_changesets_in_progress:
  - Type: Gauge
  - Description: Whether a changeset is currently in progress

Metadata Metrics:

katalog_metadata_rows_appended_total{tombstone}:
  - Type: Counter
  - Description: Metadata rows appended by prepare_persist, split by tombstone/value

Asset Metrics:

katalog_assets_scanned_total{status}:
  - Type: Counter
  - Description: Assets observed by a scan, grouped by per-asset outcome status

katalog_assets_lost_total:
  - Type: Counter
  - Description: Assets tombstoned because a changeset did not re-observe them

Scan Metrics:

katalog_scan_duration_seconds{actor}:
  - Type: Histogram
  - Description: Time taken for a source plugin's scan() call

katalog_scan_asset_latency_seconds:
  - Type: Histogram
  - Description: Time to process a single discovered asset end to end

Processor Metrics:

katalog_processor_stage_duration_seconds:
  - Type: Histogram
  - Description: Time to dispatch and run a single processor

katalog_processor_outcomes_total{status}:
  - Type: Counter
  - Description: Processor runs by outcome status

Query and Store Metrics:

katalog_query_duration_seconds{operation}:
  - Type: Histogram
  - Description: Catalog query execution time by operation (current, filter, paginate)

katalog_store_operation_duration_seconds{operation}:
  - Type: Histogram
  - Description: Persistent store call latency by operation

katalog_blobcache_hits_total{result}:
  - Type: Counter
  - Description: Blob cache lookups by "hit" or "miss"

# Usage

	timer := metrics.NewTimer()
	result, err := st.PersistChanges(reg, cs, asset, staged)
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "persist_changes")

Exposing the handler:

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
