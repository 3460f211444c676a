// Package protocol implements the control-channel frame codec: a small
// text, line-terminated format carrying Initialize/NewConnection/Heartbeat
// messages between a Client and a Server.
package protocol

import (
	"bytes"
	"strconv"

	rerr "github.com/rtcplabs/rtcp/pkg/errors"
)

// Type identifies a control-message variant.
type Type int

const (
	// Initialize is sent once by the Client, first on a control channel,
	// naming the access port the Server should open.
	Initialize Type = iota
	// NewConnection is sent by the Server to request one more data socket.
	NewConnection
	// Heartbeat is sent periodically by the Client as a liveness signal.
	Heartbeat
	// CloseConnection is reserved: parsed, never emitted by this codec's
	// callers, and always ignored by readers.
	CloseConnection
)

func (t Type) String() string {
	switch t {
	case Initialize:
		return "initialize"
	case NewConnection:
		return "new_connection"
	case Heartbeat:
		return "heartbeat"
	case CloseConnection:
		return "close_connection"
	default:
		return "unknown"
	}
}

// Message is a single control frame.
type Message struct {
	Type Type
	Port uint16 // valid only for Initialize
	ID   string // connect-id; empty for Initialize/Heartbeat/CloseConnection in practice
}

// ErrNeedMore is returned by Deserialize when buf does not yet contain a
// complete CRLF-terminated frame. Callers must read more bytes and retry;
// no bytes are consumed.
var ErrNeedMore = rerr.NewCodecError("deserialize", "need more bytes")

// Serialize renders msg in the wire format: "<type-token> <connect-id>\r\n".
// The space separating token and id is always present, even when id is empty.
func Serialize(m Message) []byte {
	var buf bytes.Buffer
	switch m.Type {
	case Initialize:
		buf.WriteString("initialize:")
		buf.WriteString(strconv.Itoa(int(m.Port)))
	default:
		buf.WriteString(m.Type.String())
	}
	buf.WriteByte(' ')
	buf.WriteString(m.ID)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// Deserialize parses one frame from the head of buf. On success it returns
// the message and the number of bytes consumed. On an incomplete frame it
// returns ErrNeedMore and consumed == 0. On a malformed type-token or port
// it returns a codec error (ErrorTypeCodec) and consumed == 0; the parser never consumes
// bytes it cannot attribute to a valid frame.
func Deserialize(buf []byte) (Message, int, error) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return Message{}, 0, ErrNeedMore
	}
	line := buf[:idx]
	consumed := idx + 2

	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return Message{}, 0, rerr.NewCodecError("deserialize", "missing token/id separator")
	}
	token := string(line[:sp])
	id := string(line[sp+1:])

	switch {
	case token == "new_connection":
		return Message{Type: NewConnection, ID: id}, consumed, nil
	case token == "heartbeat":
		return Message{Type: Heartbeat, ID: id}, consumed, nil
	case token == "close_connection":
		return Message{Type: CloseConnection, ID: id}, consumed, nil
	case len(token) > len("initialize:") && token[:len("initialize:")] == "initialize:":
		portStr := token[len("initialize:"):]
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 0 || port > 65535 {
			return Message{}, 0, rerr.NewCodecError("deserialize", "invalid port in initialize token")
		}
		return Message{Type: Initialize, Port: uint16(port), ID: id}, consumed, nil
	default:
		return Message{}, 0, rerr.NewCodecError("deserialize", "unrecognized type-token: "+token)
	}
}
