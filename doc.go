// Package netq provides an asynchronous outbound HTTP request queue with pluggable storage backends.
//
// Typical flow:
//  1. Within a business transaction, enqueue a Request using a storage-specific writer. The call only
//     performs a local durable write and returns the request ID.
//  2. Run a Dispatcher (usually wrapped in a Worker) in a dedicated process. It drains the queue in
//     batches, executes the requests concurrently through an Engine and atomically replaces every
//     request row with its Response.
//  3. Retrieve the outcome with a Collector, either immediately or by waiting for it.
//
// Delivery is at-least-once until recorded: a request whose outcome was not durably stored before a
// crash or restart stays queued and is executed again. Failed and timed-out requests are terminal and
// are never retried automatically.
//
// For the MySQL implementation, see the mysql package. The memstore package provides an in-memory
// store and httpexec provides the HTTP Transport.
package netq
