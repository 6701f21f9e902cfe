// Package protocol implements the canvas wire format: one JSON record per
// line, discriminated by its "action" field.
//
//	{"action":"draw","x":10,"y":12,"color":"#000000","size":5}
//	{"action":"shape","type":"circle","x":50,"y":50,"radius":10,"strokeColor":"#000000","fillColor":"none"}
//	{"action":"textdata","x":5,"y":5,"text":"hello"}
//	{"text":"chat line"}
//	{"action":"save","fileName":"board.json","shapes":[...]}
//	{"status":"success","message":"..."}
//	{"action":"user_left","username":"ana"}
package protocol

import (
	"github.com/Tyrowin/collabocanvas/internal/shape"
)

// Kind is the event discriminator.
type Kind string

// Event kinds. Chat messages and save statuses carry no action on the wire.
const (
	KindDraw       Kind = "draw"
	KindShape      Kind = "shape"
	KindText       Kind = "textdata"
	KindChat       Kind = "chat"
	KindSave       Kind = "save"
	KindSaveStatus Kind = "save_status"
	KindUserJoined Kind = "user_joined"
	KindUserLeft   Kind = "user_left"
	KindClear      Kind = "clear"
)

// Event is one unit of the wire protocol.
type Event interface {
	Kind() Kind
}

// DrawPoint is one freehand movement sample.
type DrawPoint struct {
	X, Y  float64
	Color shape.Color
	Size  float64
}

// ShapeCommitted carries a finished shape.
type ShapeCommitted struct {
	Shape shape.Shape
}

// TextPlaced places a text label.
type TextPlaced struct {
	X, Y float64
	Text string
}

// ChatMessage is one chat line. Username is optional.
type ChatMessage struct {
	Text     string
	Username string
}

// SaveRequest asks the server to persist a canvas snapshot.
type SaveRequest struct {
	FileName string
	Shapes   []shape.Shape
}

// Save statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SaveStatus answers a SaveRequest on the requesting connection only.
type SaveStatus struct {
	Status  string
	Message string
}

// OK reports whether the save succeeded.
func (s SaveStatus) OK() bool { return s.Status == StatusSuccess }

// UserJoined announces a new session.
type UserJoined struct {
	Username string
}

// UserLeft announces a departed session. Username is empty when the
// session never identified itself.
type UserLeft struct {
	Username string
}

// ClearCanvas wipes a peer's history.
type ClearCanvas struct{}

func (DrawPoint) Kind() Kind      { return KindDraw }
func (ShapeCommitted) Kind() Kind { return KindShape }
func (TextPlaced) Kind() Kind     { return KindText }
func (ChatMessage) Kind() Kind    { return KindChat }
func (SaveRequest) Kind() Kind    { return KindSave }
func (SaveStatus) Kind() Kind     { return KindSaveStatus }
func (UserJoined) Kind() Kind     { return KindUserJoined }
func (UserLeft) Kind() Kind       { return KindUserLeft }
func (ClearCanvas) Kind() Kind    { return KindClear }
