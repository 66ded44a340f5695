package utils

import (
	"io"
	"sync"
)

type errorReturningFlusher interface {
	Flush() error
}

type plainFlusher interface {
	Flush()
}

// FlushingWriter makes every write visible immediately by flushing the wrapped writer when it supports flushing.
// Both bufio-style Flush() error and http.Flusher-style Flush() are honored, which keeps
// server-sent events unbuffered.
type FlushingWriter struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewFlushingWriter wraps the provided writer and flushes it after each write when the writer supports flushing.
func NewFlushingWriter(writer io.Writer) io.Writer {
	if writer == nil {
		return nil
	}
	if _, alreadyWrapped := writer.(*FlushingWriter); alreadyWrapped {
		return writer
	}
	return &FlushingWriter{writer: writer}
}

// Write delegates to the underlying writer and flushes it when possible.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.writer == nil {
		return 0, nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	switch flushableWriter := flushingWriter.writer.(type) {
	case errorReturningFlusher:
		if flushError := flushableWriter.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	case plainFlusher:
		flushableWriter.Flush()
	}

	return bytesWritten, nil
}
