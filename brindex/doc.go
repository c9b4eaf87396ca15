// Package brindex implements the byte-range index of a log-structured
// parallel file system.
//
// Each logical file is stored as a container: a directory tree whose
// leaves are append-only data droppings (the raw bytes one writer
// produced) and index droppings (fixed-size records saying where each
// piece of logical file content lives physically). On the write path the
// index journals one record per append and flushes them in batches to a
// single index dropping per open. On the read path it scans every index
// dropping in the container, resolves overlapping writes by timestamp,
// and serves byte-range queries from the aggregated interval map.
//
// Index droppings are named
//
//	dropping.index.<sec>.<usec>.<host>.<pid>
//
// and each record's writer id selects the paired data dropping
//
//	dropping.data.<sec>.<usec>.<host>.<writerid>
//
// in the same writer subdirectory. A single index dropping can therefore
// reference several data droppings.
package brindex
