package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter moves log lines off the caller's goroutine and fans them out
// to buffered sinks. Sinks are flushed whenever the queue runs dry, so a
// quiet bot still gets its lines on disk promptly. A full queue blocks the
// caller rather than dropping lines.
type asyncWriter struct {
	// mu guards closed against a concurrent Write sending on a closed queue.
	mu     sync.RWMutex
	closed bool

	queue   chan []byte
	flushes chan chan error
	done    chan struct{}

	sinks []*bufio.Writer
	// errs holds the first error of each sink; a failing file does not
	// silence stderr.
	errs []error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:   make(chan []byte, 256),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	w.errs = make([]error, len(w.sinks))
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.flush()
				return
			}
			w.write(line)
			if len(w.queue) == 0 {
				w.flush()
			}
		case ack := <-w.flushes:
			for len(w.queue) > 0 {
				w.write(<-w.queue)
			}
			ack <- w.flush()
		}
	}
}

// Write queues a copy of p.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- line
	return nil
}

// Flush writes everything queued so far and flushes the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	ack := make(chan error, 1)
	w.flushes <- ack
	return <-ack
}

// Close drains the queue and returns the sink errors seen along the way.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return errors.Join(w.errs...)
}

func (w *asyncWriter) write(line []byte) {
	for i, sink := range w.sinks {
		if w.errs[i] != nil {
			continue
		}
		if _, err := sink.Write(line); err != nil {
			w.errs[i] = err
		}
	}
}

func (w *asyncWriter) flush() error {
	var errs []error
	for i, sink := range w.sinks {
		if w.errs[i] != nil {
			errs = append(errs, w.errs[i])
			continue
		}
		if err := sink.Flush(); err != nil {
			w.errs[i] = err
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
