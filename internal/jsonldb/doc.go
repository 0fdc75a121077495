// Package jsonldb provides a generic, concurrent-safe, JSONL-backed table.
//
// # Overview
//
// [Table] keeps every row in memory and serves reads from there. Writes only
// touch memory; [Table.Flush] persists a full snapshot by writing a temporary
// file, syncing it and renaming it over the table file. Several mutations
// between two flushes therefore cost a single write.
//
// # Concurrency
//
// [Table.Modify] holds the write lock for the entire read-modify-write, so
// concurrent modifications of the same row never lose updates. Flush only
// holds the read lock while it snapshots the encoded rows.
//
// # File Format
//
// One JSON object per line. Blank lines are ignored on load.
package jsonldb
