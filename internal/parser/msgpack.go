package parser

import (
	"github.com/vmihailenco/msgpack/v5"

	"RobotSupervisor/internal/model"
)

// MsgpackParser implements Parser using msgpack maps, one per websocket
// binary message.
type MsgpackParser struct{}

// NewMsgpackParser creates a new msgpack parser.
func NewMsgpackParser() *MsgpackParser { return &MsgpackParser{} }

// Encode encodes a Message into a msgpack frame.
func (p *MsgpackParser) Encode(m *model.Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode decodes a msgpack frame into a Message.
func (p *MsgpackParser) Decode(frame []byte) (*model.Message, error) {
	var m model.Message
	if err := msgpack.Unmarshal(frame, &m); err != nil {
		return nil, &DecodeError{Frame: frame, Msg: "invalid msgpack frame", Err: err}
	}
	return checkType(frame, &m)
}
