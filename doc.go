// Package mailqueue provides a persisted work queue for asynchronous email dispatch.
//
// Typical flow:
//  1. A producer calls Queue.Enqueue with a Payload; the entry is persisted and becomes eligible.
//  2. A Dispatcher drain pass repeatedly claims the oldest eligible entry and hands it to a Transport.
//  3. On success the entry is marked sent; on failure it is returned to the pool until MaxRetries claims were spent.
//
// Entries that run out of retries stay in storage and are never claimed again.
// Storage backends live in the mongo, mysql, postgres and memory packages.
package mailqueue
