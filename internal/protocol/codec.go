package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Tyrowin/collabocanvas/internal/shape"
)

// Sentinel causes wrapped by DecodeError.
var (
	ErrUnknownKind   = errors.New("unknown kind")
	ErrMissingField  = errors.New("missing required field")
	ErrNoKind        = errors.New("record has no action, status or text")
	ErrUnsupported   = errors.New("unsupported event")
	recordTerminator = []byte{'\n'}
)

const maxErrorPreview = 120

// DecodeError reports a record that could not be turned into an Event.
// The stream it came from stays usable.
type DecodeError struct {
	Record []byte
	Err    error
}

func (e *DecodeError) Error() string {
	rec := e.Record
	if len(rec) > maxErrorPreview {
		rec = append(append([]byte(nil), rec[:maxErrorPreview]...), "..."...)
	}
	return fmt.Sprintf("protocol: bad record %q: %v", rec, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// envelope is the flat union of every field any record may carry.
type envelope struct {
	Action string `json:"action,omitempty"`
	shape.Record
	Color    string         `json:"color,omitempty"`
	FileName string         `json:"fileName,omitempty"`
	Shapes   []shape.Record `json:"shapes,omitempty"`
	Username string         `json:"username,omitempty"`
	Status   string         `json:"status,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func num(v float64) *float64 { return &v }

func str(v string) *string { return &v }

// Encode serializes ev as one newline-terminated record.
func Encode(ev Event) ([]byte, error) {
	var env envelope
	switch e := ev.(type) {
	case DrawPoint:
		env.Action = string(KindDraw)
		env.X, env.Y = num(e.X), num(e.Y)
		env.Color = e.Color.String()
		if e.Color.IsNone() {
			env.Color = "transparent"
		}
		env.Size = num(e.Size)
	case ShapeCommitted:
		env.Action = string(KindShape)
		env.Record = e.Shape.ToWire()
	case TextPlaced:
		env.Action = string(KindText)
		env.X, env.Y = num(e.X), num(e.Y)
		env.Text = str(e.Text)
	case ChatMessage:
		env.Text = str(e.Text)
		env.Username = e.Username
	case SaveRequest:
		env.Action = string(KindSave)
		env.FileName = e.FileName
		env.Shapes = make([]shape.Record, 0, len(e.Shapes))
		for _, s := range e.Shapes {
			env.Shapes = append(env.Shapes, s.ToWire())
		}
	case SaveStatus:
		env.Status = e.Status
		env.Message = e.Message
	case UserJoined:
		env.Action = string(KindUserJoined)
		env.Username = e.Username
	case UserLeft:
		env.Action = string(KindUserLeft)
		env.Username = e.Username
	case ClearCanvas:
		env.Action = string(KindClear)
	default:
		return nil, fmt.Errorf("protocol: encode %T: %w", ev, ErrUnsupported)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", ev.Kind(), err)
	}
	return append(data, recordTerminator...), nil
}

// MustEncode is Encode for events that cannot fail; it panics otherwise.
func MustEncode(ev Event) []byte {
	data, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses one record. Surrounding whitespace and the line
// terminator are ignored. Every failure is a *DecodeError.
func Decode(record []byte) (Event, error) {
	record = bytes.TrimSpace(record)
	ev, err := decode(record)
	if err != nil {
		return nil, &DecodeError{Record: append([]byte(nil), record...), Err: err}
	}
	return ev, nil
}

func decode(record []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(record, &env); err != nil {
		return nil, err
	}

	switch Kind(env.Action) {
	case "":
		switch {
		case env.Status != "":
			return SaveStatus{Status: env.Status, Message: env.Message}, nil
		case env.Text != nil:
			return ChatMessage{Text: *env.Text, Username: env.Username}, nil
		default:
			return nil, ErrNoKind
		}

	case KindDraw:
		if env.X == nil || env.Y == nil {
			return nil, fmt.Errorf("draw: %w: x, y", ErrMissingField)
		}
		if env.Size == nil {
			return nil, fmt.Errorf("draw: %w: size", ErrMissingField)
		}
		color, err := shape.ParseColor(env.Color, shape.DefaultStroke)
		if err != nil {
			return nil, err
		}
		return DrawPoint{X: *env.X, Y: *env.Y, Color: color, Size: *env.Size}, nil

	case KindShape:
		s, err := shape.FromWire(env.Record)
		if err != nil {
			return nil, err
		}
		return ShapeCommitted{Shape: s}, nil

	case KindText:
		if env.X == nil || env.Y == nil || env.Text == nil {
			return nil, fmt.Errorf("textdata: %w: x, y, text", ErrMissingField)
		}
		return TextPlaced{X: *env.X, Y: *env.Y, Text: *env.Text}, nil

	case KindSave:
		if env.FileName == "" {
			return nil, fmt.Errorf("save: %w: fileName", ErrMissingField)
		}
		shapes := make([]shape.Shape, 0, len(env.Shapes))
		for i, rec := range env.Shapes {
			s, err := shape.FromWire(rec)
			if err != nil {
				return nil, fmt.Errorf("save: shape %d: %w", i, err)
			}
			shapes = append(shapes, s)
		}
		return SaveRequest{FileName: env.FileName, Shapes: shapes}, nil

	case KindUserJoined:
		return UserJoined{Username: env.Username}, nil

	case KindUserLeft:
		return UserLeft{Username: env.Username}, nil

	case KindClear:
		return ClearCanvas{}, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, env.Action)
	}
}
