// Package parser implements the JSONParser which encodes and decodes
// monitor messages in JSON format.
package parser

import (
	"encoding/json"

	"RobotSupervisor/internal/model"
)

// JSONParser implements Parser interface using JSON serialization.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// Encode encodes a Message into a JSON frame.
func (p *JSONParser) Encode(m *model.Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode decodes a JSON frame into a Message.
func (p *JSONParser) Decode(frame []byte) (*model.Message, error) {
	var m model.Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, &DecodeError{Frame: frame, Msg: "invalid json frame", Err: err}
	}
	return checkType(frame, &m)
}
