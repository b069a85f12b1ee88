// Package crawler drives an incremental, resumable scan of one location type.
// It walks indices in ascending order chunk by chunk, appends each found
// record durably before moving on and aborts the run on the first fetch
// failure so a later run resumes at the failing index.
package crawler
