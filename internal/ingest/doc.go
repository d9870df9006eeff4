// Package ingest runs the per-source ingestion cycle: fetch through the
// source's feed adapter, process every CAP payload into an AlertRecord,
// hand records to the store and finalize the source state.
package ingest
