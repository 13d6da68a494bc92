// Package bridge implements the native bridge dispatcher.
//
// A Dispatcher owns one platform adapter, the receiver registry, the table
// of pending asynchronous calls and the completion queue. Application code
// issues calls through it; native code re-enters through OnNativeEvent.
//
// ARCHITECTURE:
//
// Sync calls:
// CallSync acquires the channel gate, runs the native call on a worker
// goroutine and waits for the result or the sync timeout. The gate is
// released on every exit path, including timeout. A result that arrives
// after its call timed out is dropped and logged.
//
// Async calls:
// CallAsync stamps the message with a fresh correlation id, records a
// pending call and fires the native request. It never blocks on the result.
//
// Callbacks:
// Native threads call OnNativeEvent, which only decodes, correlates and
// enqueues. Receivers run exclusively on the main context: the goroutine
// running Run, or the caller of Drain for hosts that pump from their own
// frame loop.
//
// Correlation ids come from a monotonic logical counter and are never
// reused for the lifetime of a dispatcher.
package bridge
