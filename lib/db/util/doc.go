// Package util provides utility components for implementations of the db.SpinedDB interface.
//
// The package contains:
//   - mapheap: A generic priority queue that also supports key-based access; the
//     spine engine orders dirty spines by their first-dirty time with it
//   - lockfreempsc: A lock-free Multi-Producer Single-Consumer (MPSC) queue build for
//     high throughput and low latency, with optional acknowledgement so producers can
//     wait until the consumer caught up
//
// Both components are used by the background flusher of the spine engine; the
// queue is also used by the store to deliver write notifications in order.
package util
