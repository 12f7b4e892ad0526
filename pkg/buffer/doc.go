// Package buffer provides a thread-safe unbounded FIFO queue for handing
// values from producer goroutines to a single consumer.
//
// Producers call Add or Write and never block. The consumer calls Next or
// NextContext, which block until an element arrives or the buffer is
// closed. CloseWrite ends the stream after the queued elements are drained;
// CloseWithError aborts it immediately.
//
// Example usage:
//
//	q := buffer.N[string](16)
//
//	go func() {
//	    defer q.CloseWrite()
//	    q.Add("hello")
//	}()
//
//	for {
//	    v, err := q.Next()
//	    if err == buffer.ErrIteratorDone {
//	        break
//	    }
//	    ...
//	}
package buffer
