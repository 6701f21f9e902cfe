package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

// DefaultMaxRecordSize bounds a single record when the caller passes zero.
const DefaultMaxRecordSize = 1 << 20

// ErrRecordTooLong is returned for a line longer than the reader's limit.
// The oversized line is discarded and the next call resumes after it.
var ErrRecordTooLong = errors.New("protocol: record too long")

// Reader splits a byte stream into records on '\n'. Blank lines are
// skipped. A final record without a terminator is returned before io.EOF.
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader returns a Reader over r that rejects records above max bytes.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxRecordSize
	}
	return &Reader{br: bufio.NewReaderSize(r, 4096), max: max}
}

// ReadRecord returns the next non-blank record without its terminator.
// The returned slice is owned by the caller.
func (r *Reader) ReadRecord() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (r *Reader) readLine() ([]byte, error) {
	var (
		buf      []byte
		tooLong  bool
		sawBytes bool
	)
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(chunk) > 0 {
			sawBytes = true
		}
		// room for a CRLF terminator; the exact check runs once the line ends
		if !tooLong {
			if len(buf)+len(chunk) > r.max+2 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong || r.overLimit(buf) {
				return nil, ErrRecordTooLong
			}
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong || r.overLimit(buf) {
				return nil, ErrRecordTooLong
			}
			if sawBytes {
				return buf, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// overLimit reports whether line holds more than max bytes once its
// "\n" or "\r\n" terminator is removed.
func (r *Reader) overLimit(line []byte) bool {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return len(line) > r.max
}

// Next reads and decodes the next record. Decode failures are returned
// as *DecodeError and leave the Reader positioned at the following record.
func (r *Reader) Next() (Event, error) {
	rec, err := r.ReadRecord()
	if err != nil {
		return nil, err
	}
	return Decode(rec)
}

// Writer frames records onto an io.Writer. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent encodes ev and writes it as one record.
func (w *Writer) WriteEvent(ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	return w.WriteRecord(data)
}

// WriteRecord writes an already encoded record, adding the terminator if
// it is missing.
func (w *Writer) WriteRecord(record []byte) error {
	if len(record) == 0 || record[len(record)-1] != '\n' {
		record = append(append(make([]byte, 0, len(record)+1), record...), '\n')
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(record)
	return err
}
