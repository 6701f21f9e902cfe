package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/collabocanvas/internal/shape"
)

// TestEncodeDecodeRoundTrip verifies that every event kind decodes back to
// an equal value.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		DrawPoint{X: 10, Y: 12, Color: shape.Black, Size: 5},
		DrawPoint{X: 1, Y: 2, Color: shape.Transparent, Size: 1},
		ShapeCommitted{Shape: shape.NewCircle(50, 50, 10, shape.Black, shape.Transparent)},
		ShapeCommitted{Shape: shape.NewFreehand([]shape.Point{{X: 1, Y: 1}, {X: 2, Y: 3}}, 3, shape.White)},
		TextPlaced{X: 5, Y: 6, Text: "hello"},
		ChatMessage{Text: "hi all", Username: "ana"},
		ChatMessage{Text: "anonymous"},
		SaveRequest{FileName: "board.json", Shapes: []shape.Shape{
			shape.NewRectangle(0, 0, 10, 20, shape.Black, shape.White),
			shape.NewText(1, 1, "label", shape.Black),
		}},
		SaveRequest{FileName: "empty.json", Shapes: []shape.Shape{}},
		SaveStatus{Status: StatusSuccess, Message: "saved"},
		SaveStatus{Status: StatusError, Message: "disk full"},
		UserJoined{Username: "bo"},
		UserLeft{Username: "bo"},
		UserLeft{},
		ClearCanvas{},
	}

	for _, ev := range events {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			data, err := Encode(ev)
			require.NoError(t, err)
			require.True(t, bytes.HasSuffix(data, []byte("\n")))
			assert.Equal(t, 1, bytes.Count(data, []byte("\n")), "record must be a single line")

			back, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ev, back)
		})
	}
}

// TestDecodeWireForms verifies decoding of records as peers actually send
// them, including the records without an action field.
func TestDecodeWireForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
	}{
		{"draw", `{"action":"draw","x":10,"y":12,"color":"#000000","size":5}`,
			DrawPoint{X: 10, Y: 12, Color: shape.Black, Size: 5}},
		{"draw default color", `{"action":"draw","x":1,"y":2,"size":3}`,
			DrawPoint{X: 1, Y: 2, Color: shape.Black, Size: 3}},
		{"chat", `{"text":"hello"}`, ChatMessage{Text: "hello"}},
		{"status", `{"status":"success","message":"ok"}`, SaveStatus{Status: StatusSuccess, Message: "ok"}},
		{"textdata", `{"action":"textdata","x":5,"y":5,"text":"hi"}`, TextPlaced{X: 5, Y: 5, Text: "hi"}},
		{"save without shapes", `{"action":"save","fileName":"a.json"}`, SaveRequest{FileName: "a.json", Shapes: []shape.Shape{}}},
		{"clear", `{"action":"clear"}`, ClearCanvas{}},
		{"trailing whitespace", "{\"text\":\"x\"}\r\n", ChatMessage{Text: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestDecodeErrors verifies that bad records surface as DecodeError with a
// useful cause.
func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		cause error
	}{
		{"not json", `draw 10 12`, nil},
		{"not an object", `[1,2,3]`, nil},
		{"unknown action", `{"action":"teleport"}`, ErrUnknownKind},
		{"no discriminator", `{"x":1}`, ErrNoKind},
		{"draw without size", `{"action":"draw","x":1,"y":1}`, ErrMissingField},
		{"textdata without text", `{"action":"textdata","x":1,"y":1}`, ErrMissingField},
		{"save without name", `{"action":"save","shapes":[]}`, ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tt.in, string(de.Record))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}

	t.Run("shape with unknown type", func(t *testing.T) {
		_, err := Decode([]byte(`{"action":"shape","type":"hexagon","x":1,"y":1}`))
		var unknown *shape.UnknownKindError
		assert.True(t, errors.As(err, &unknown))
	})

	t.Run("save with bad shape", func(t *testing.T) {
		_, err := Decode([]byte(`{"action":"save","fileName":"a","shapes":[{"type":"circle","x":1,"y":1}]}`))
		var missing *shape.MissingFieldError
		assert.True(t, errors.As(err, &missing))
	})
}

// TestReaderSkipsMalformedRecord verifies that a malformed record between
// two valid ones yields one decode error and both valid events.
func TestReaderSkipsMalformedRecord(t *testing.T) {
	stream := `{"text":"first"}` + "\n" +
		`{"action":` + "\n" +
		"\n" +
		`{"text":"second"}`

	r := NewReader(strings.NewReader(stream), 0)

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, ChatMessage{Text: "first"}, ev)

	_, err = r.Next()
	var de *DecodeError
	require.True(t, errors.As(err, &de))

	ev, err = r.Next()
	require.NoError(t, err, "unterminated final record is still delivered")
	assert.Equal(t, ChatMessage{Text: "second"}, ev)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// TestReaderRecordTooLong verifies that an oversized line is discarded and
// reading resumes with the next record.
func TestReaderRecordTooLong(t *testing.T) {
	long := `{"text":"` + strings.Repeat("x", 10000) + `"}`
	stream := long + "\n" + `{"text":"ok"}` + "\n" + long

	r := NewReader(strings.NewReader(stream), 64)

	_, err := r.ReadRecord()
	assert.ErrorIs(t, err, ErrRecordTooLong)

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, `{"text":"ok"}`, string(rec))

	_, err = r.ReadRecord()
	assert.ErrorIs(t, err, ErrRecordTooLong)

	_, err = r.ReadRecord()
	assert.ErrorIs(t, err, io.EOF)
}

// TestReaderExactLimit verifies that the limit counts record bytes only,
// whatever the terminator.
func TestReaderExactLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		end     string
		tooLong bool
	}{
		{"lf at limit", 32, "\n", false},
		{"crlf at limit", 32, "\r\n", false},
		{"unterminated at limit", 32, "", false},
		{"lf over limit", 33, "\n", true},
		{"crlf over limit", 33, "\r\n", true},
		{"unterminated over limit", 33, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := strings.Repeat("a", tt.size)
			r := NewReader(strings.NewReader(rec+tt.end+"next\n"), 32)
			if tt.end == "" {
				r = NewReader(strings.NewReader(rec), 32)
			}

			got, err := r.ReadRecord()
			if tt.tooLong {
				assert.ErrorIs(t, err, ErrRecordTooLong)
			} else {
				require.NoError(t, err)
				assert.Equal(t, rec, string(got))
			}

			if tt.end != "" {
				next, err := r.ReadRecord()
				require.NoError(t, err)
				assert.Equal(t, "next", string(next))
			}
		})
	}
}

// TestWriterConcurrent verifies that concurrent writers never interleave
// inside a record.
func TestWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, w.WriteEvent(ChatMessage{Text: strings.Repeat("z", 100)}))
			}
		}()
	}
	wg.Wait()

	r := NewReader(&buf, 0)
	count := 0
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.IsType(t, ChatMessage{}, ev)
		count++
	}
	assert.Equal(t, 500, count)
}

// TestWriteRecordAddsTerminator verifies raw records are framed.
func TestWriteRecordAddsTerminator(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteRecord([]byte(`{"text":"a"}`)))
	require.NoError(t, w.WriteRecord([]byte("{\"text\":\"b\"}\n")))
	assert.Equal(t, "{\"text\":\"a\"}\n{\"text\":\"b\"}\n", buf.String())
}
