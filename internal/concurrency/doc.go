// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives shared by pollers and endpoints: the bounded
// lock-free action queue, the unbounded FIFO used for outbound packets and
// completions, the tick loop of own-thread pollers and monotonic stopwatches
// for deadline checks.
package concurrency
