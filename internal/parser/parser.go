// Package parser converts monitor wire frames to messages and vice-versa.
//
// Three wire formats are supported:
//
//	text     LABEL or LABEL:FIELD,FIELD,...
//	json     one JSON object per frame
//	msgpack  one msgpack map per frame
package parser

import (
	"fmt"

	"RobotSupervisor/internal/model"
)

// Parser defines encoding/decoding of monitor messages.
type Parser interface {
	Encode(m *model.Message) ([]byte, error)
	Decode(frame []byte) (*model.Message, error)
}

// DecodeError reports a frame that could not be turned into a known message.
type DecodeError struct {
	Frame []byte
	Msg   string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// New returns the parser registered for a wire format name.
func New(format string) (Parser, error) {
	switch format {
	case "text", "":
		return NewTextParser(), nil
	case "json":
		return NewJSONParser(), nil
	case "msgpack":
		return NewMsgpackParser(), nil
	}
	return nil, fmt.Errorf("unknown wire format %q", format)
}

// checkType rejects messages whose type is outside the protocol.
func checkType(frame []byte, m *model.Message) (*model.Message, error) {
	if m.Type == "" {
		return nil, &DecodeError{Frame: frame, Msg: "missing message type"}
	}
	if !m.Type.Known() {
		return nil, &DecodeError{Frame: frame, Msg: fmt.Sprintf("unknown message type %q", m.Type)}
	}
	return m, nil
}
