// Package ingest turns directory trees of tab-delimited annotation tables
// into observations for the record merger.
//
// Each source pairs a discovery rule (glob, or group directories plus a
// per-group path template) with a Layout: the validated column schema that
// maps fields to categories. Layout references are resolved against the
// header once per file, never per row.
package ingest
