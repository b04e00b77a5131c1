package cluster

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// MsgType identifies the purpose of a wire message
type MsgType string

// Request types
const (
	GetReq   MsgType = "GETREQ"
	PutReq   MsgType = "PUTREQ"
	DelReq   MsgType = "DELREQ"
	Register MsgType = "REGISTER"
	Info     MsgType = "INFO"
)

// Response and control types
const (
	GetResp    MsgType = "GETRESP"
	Resp       MsgType = "RESP"
	VoteCommit MsgType = "VOTE_COMMIT"
	VoteAbort  MsgType = "VOTE_ABORT"
	Commit     MsgType = "COMMIT"
	Abort      MsgType = "ABORT"
	Ack        MsgType = "ACK"
)

// MaxMessageSize bounds a single encoded message
const MaxMessageSize = 64 << 10

// Message is the single wire format exchanged between clients, the
// coordinator and participants. Which fields are set depends on Type.
type Message struct {
	Type    MsgType `json:"type"`
	Key     string  `json:"key,omitempty"`
	Value   string  `json:"value,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Send writes m to w
func Send(w io.Writer, m *Message) error {
	return errors.Wrap(json.NewEncoder(w).Encode(m), "send message")
}

// Receive reads one message from r
func Receive(r io.Reader) (*Message, error) {
	var m Message
	dec := json.NewDecoder(io.LimitReader(r, MaxMessageSize))
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "receive message")
	}
	if m.Type == "" {
		return nil, ErrInvalidRequest
	}
	return &m, nil
}

// Response builds a RESP carrying the client text for err (or SUCCESS)
func Response(err error) *Message {
	return &Message{Type: Resp, Message: MessageFor(err)}
}
