// Package queue persists conversion jobs in SQLite. Each job row tracks the
// lifecycle status, weighted progress and output location; failures append
// to a separate error-record table that is never rewritten. A file lock next
// to the database keeps concurrent rebind processes from sharing the queue.
package queue
