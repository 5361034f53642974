package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the slice of a websocket connection the client pumps touch.
// ReadPump owns the inbound half and WritePump the outbound half.
type Conn interface {
	inbound
	outbound
	Close() error
	RemoteAddr() string
}

type inbound interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
}

type outbound interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// upgradedConn adapts *websocket.Conn, whose RemoteAddr returns a net.Addr.
type upgradedConn struct {
	*websocket.Conn
}

func (c upgradedConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
