// Package store holds the latest snapshot of a polled adapter resource and
// fans updates out to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining record, read and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: Storage representation of a resource's state
//
// A failed poll never discards data: [Store.RecordFailure] only raises the
// error indicator, so readers keep seeing the last good document. Subscribers
// receive updates via channels with non-blocking sends (slow subscribers will
// miss updates rather than block the poll loop).
package store
