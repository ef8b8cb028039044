package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// maxPending bounds queued lines; writers block once it is reached.
const maxPending = 1024

var errWriterClosed = errors.New("log writer closed")

// asyncWriter queues formatted lines and hands them in batches to a single
// drain goroutine, so handlers never wait on a slow sink.
type asyncWriter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending [][]byte
	queued  uint64
	written uint64
	closed  bool
	err     error

	out  *bufio.Writer
	done chan struct{}
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		out:  bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize),
		done: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.drain()
	return w
}

func (w *asyncWriter) drain() {
	defer close(w.done)
	var batch [][]byte
	for {
		w.mu.Lock()
		for len(w.pending) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return
		}
		clear(batch)
		batch, w.pending = w.pending, batch[:0]
		w.mu.Unlock()

		err := w.emit(batch)

		w.mu.Lock()
		w.written += uint64(len(batch))
		if err != nil && w.err == nil {
			w.err = err
		}
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// emit writes one batch and flushes once at the end of it.
func (w *asyncWriter) emit(batch [][]byte) error {
	for _, line := range batch {
		if _, err := w.out.Write(line); err != nil {
			return err
		}
	}
	return w.out.Flush()
}

// Write copies p onto the queue. It returns the first sink error seen so far.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)

	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.pending) >= maxPending && !w.closed && w.err == nil {
		w.cond.Wait()
	}
	switch {
	case w.err != nil:
		return w.err
	case w.closed:
		return errWriterClosed
	}
	w.pending = append(w.pending, line)
	w.queued++
	w.cond.Broadcast()
	return nil
}

// Flush blocks until every line queued before the call has reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	target := w.queued
	for w.written < target && w.err == nil {
		w.cond.Wait()
	}
	return w.err
}

// Close drains what is queued and stops the writer. Later writes fail.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
