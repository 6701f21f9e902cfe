package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/collabocanvas/internal/protocol"
)

// Conn is one peer transport carrying newline-delimited records.
type Conn interface {
	// ReadRecord returns the next non-blank record without its terminator.
	ReadRecord() ([]byte, error)
	// WriteRecord sends one encoded record.
	WriteRecord(record []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// pinger is implemented by transports that need keepalive frames.
type pinger interface {
	Ping() error
}

type lineConn struct {
	conn net.Conn
	r    *protocol.Reader
	w    *protocol.Writer
}

// NewLineConn frames records over a raw stream connection such as TCP.
func NewLineConn(conn net.Conn, maxRecordSize int) Conn {
	return &lineConn{
		conn: conn,
		r:    protocol.NewReader(conn, maxRecordSize),
		w:    protocol.NewWriter(conn),
	}
}

func (c *lineConn) ReadRecord() ([]byte, error)        { return c.r.ReadRecord() }
func (c *lineConn) WriteRecord(record []byte) error    { return c.w.WriteRecord(record) }
func (c *lineConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *lineConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *lineConn) Close() error                       { return c.conn.Close() }

func (c *lineConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// wsConn carries records in WebSocket text frames. A frame may hold
// several newline-separated records.
type wsConn struct {
	conn    *websocket.Conn
	addr    string
	pending [][]byte
	writeMu sync.Mutex
	timeout time.Duration
}

// NewWSConn adapts an upgraded WebSocket connection.
func NewWSConn(conn *websocket.Conn, addr string, maxRecordSize int, writeTimeout time.Duration) Conn {
	if maxRecordSize <= 0 {
		maxRecordSize = protocol.DefaultMaxRecordSize
	}
	conn.SetReadLimit(int64(maxRecordSize))
	if addr == "" && conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}
	return &wsConn{conn: conn, addr: addr, timeout: writeTimeout}
}

func (c *wsConn) ReadRecord() ([]byte, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, protocol.ErrRecordTooLong
			}
			return nil, err
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			line = bytes.TrimRight(line, "\r")
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			c.pending = append(c.pending, line)
		}
	}
	rec := c.pending[0]
	c.pending = c.pending[1:]
	return rec, nil
}

func (c *wsConn) WriteRecord(record []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(record, "\n"))
}

func (c *wsConn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *wsConn) RemoteAddr() string                 { return c.addr }

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
