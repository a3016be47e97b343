package journal

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

var Logger = logger.GetLogger("journal")

// Writer receives every chronology after a successful merge
type Writer interface {
	Write(c entity.Chronology, activity entity.ActivityKind) error
}

// Entry is one journaled write
type Entry struct {
	Nid      int32               `msgpack:"nid"`
	Activity entity.ActivityKind `msgpack:"activity"`
	Time     int64               `msgpack:"time"` // unix millis of the write
	Record   []byte              `msgpack:"record"`
}

// Chronology decodes the journaled record
func (e Entry) Chronology() (entity.Chronology, error) {
	return entity.DecodeChronology(e.Record)
}

// --------------------------------------------------------------------------
// File writer
// --------------------------------------------------------------------------

// FileWriter appends msgpack encoded entries to a file.
//
// Thread-safety: Write, Flush and Close are serialized.
type FileWriter struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *msgpack.Encoder
	entries uint64
	closed  bool
}

// OpenFileWriter opens path for appending, creating it if necessary
func OpenFileWriter(path string) (*FileWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	buf := bufio.NewWriter(file)
	return &FileWriter{file: file, buf: buf, enc: msgpack.NewEncoder(buf)}, nil
}

// Write appends the chronology. Entries are buffered until Flush or Close.
func (w *FileWriter) Write(c entity.Chronology, activity entity.ActivityKind) error {
	entry := Entry{
		Nid:      c.Nid(),
		Activity: activity,
		Time:     time.Now().UnixMilli(),
		Record:   c.Bytes(),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	if err := w.enc.Encode(&entry); err != nil {
		return errors.Wrapf(err, "journaling nid %d", entry.Nid)
	}
	w.entries++
	return nil
}

// Entries returns the number of entries written since open
func (w *FileWriter) Entries() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries
}

// Flush writes buffered entries to the file and syncs it
func (w *FileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flush()
}

func (w *FileWriter) flush() error {
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, "flushing journal")
	}
	return errors.Wrap(w.file.Sync(), "syncing journal")
}

// Close flushes and closes the file. Calling Close more than once is a no-op.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flush()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// --------------------------------------------------------------------------
// Replay
// --------------------------------------------------------------------------

// Replay calls fn for every entry in the journal at path, in write order. A
// truncated last entry, as left by a crash during a write, ends the replay
// with a warning. It returns the number of entries passed to fn.
func Replay(path string, fn func(Entry) error) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening journal %s", path)
	}
	defer file.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(file))
	count := 0
	for {
		var entry Entry
		err := dec.Decode(&entry)
		if err == io.EOF {
			return count, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			Logger.Warningf("journal %s ends with a truncated entry after %d entries", path, count)
			return count, nil
		}
		if err != nil {
			return count, errors.Wrapf(err, "decoding entry %d of %s", count, path)
		}
		if err := fn(entry); err != nil {
			return count, err
		}
		count++
	}
}
