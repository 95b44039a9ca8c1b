// Package parser implements the TextParser which handles encoding and decoding
// of monitor messages using a LABEL:comma,separated,fields format.
package parser

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"RobotSupervisor/internal/model"
)

// TextParser implements Parser using the line-oriented text format.
// Examples:
//
//	ROBOT_GO_FORWARD
//	BATTERY_LEVEL:2
//	POSITION:120.50,80.00,0.00,1
//	CALIBRATION_RESULT:120.50,80.00,0.00,1,10,10,300,220
//	CAM_IMAGE:SEQ,WIDTH,HEIGHT,TRACE_ID,BASE64
//	ERROR:free text, commas allowed
type TextParser struct{}

// NewTextParser creates a new text parser instance.
func NewTextParser() *TextParser { return &TextParser{} }

// Encode converts a Message into its text frame.
func (p *TextParser) Encode(m *model.Message) ([]byte, error) {
	if m == nil || m.Type == "" {
		return nil, errors.New("encode: empty message")
	}
	label := string(m.Type)
	switch m.Type {
	case model.MsgError, model.MsgStatus, model.MsgCommandEcho:
		return []byte(label + ":" + m.Text), nil
	case model.MsgBatteryLevel:
		return []byte(fmt.Sprintf("%s:%d", label, m.Battery)), nil
	case model.MsgPosition, model.MsgCalibrationResult:
		var pos model.Position
		if m.Position != nil {
			pos = *m.Position
		}
		line := fmt.Sprintf("%s:%.2f,%.2f,%.2f,%s", label, pos.X, pos.Y, pos.Angle, boolField(m.Confirmed))
		if m.Arena != nil {
			line += fmt.Sprintf(",%d,%d,%d,%d", m.Arena.X, m.Arena.Y, m.Arena.Width, m.Arena.Height)
		}
		return []byte(line), nil
	case model.MsgCamImage:
		if m.Image == nil {
			return nil, errors.New("encode: image message without image")
		}
		img := m.Image
		return []byte(fmt.Sprintf("%s:%d,%d,%d,%s,%s", label, img.Seq, img.Width, img.Height,
			img.TraceID, base64.StdEncoding.EncodeToString(img.Data))), nil
	}
	return []byte(label), nil
}

// Decode parses a text frame into a Message.
func (p *TextParser) Decode(frame []byte) (*model.Message, error) {
	line := strings.TrimSpace(string(frame))
	if line == "" {
		return nil, &DecodeError{Frame: frame, Msg: "empty frame"}
	}
	label, rest, hasFields := strings.Cut(line, ":")
	m, err := checkType(frame, &model.Message{Type: model.MessageType(label)})
	if err != nil {
		return nil, err
	}

	switch m.Type {
	case model.MsgError, model.MsgStatus, model.MsgCommandEcho:
		m.Text = rest
	case model.MsgBatteryLevel:
		lvl, err := strconv.Atoi(rest)
		if err != nil {
			return nil, &DecodeError{Frame: frame, Msg: "invalid battery level", Err: err}
		}
		m.Battery = model.BatteryLevel(lvl)
	case model.MsgPosition, model.MsgCalibrationResult:
		if err := decodePosition(m, strings.Split(rest, ",")); err != nil {
			return nil, &DecodeError{Frame: frame, Msg: "invalid position", Err: err}
		}
	case model.MsgCamImage:
		img, err := decodeImage(strings.Split(rest, ","))
		if err != nil {
			return nil, &DecodeError{Frame: frame, Msg: "invalid image", Err: err}
		}
		m.Image = img
	default:
		if hasFields && rest != "" {
			return nil, &DecodeError{Frame: frame, Msg: fmt.Sprintf("%s takes no fields", m.Type)}
		}
	}
	return m, nil
}

func decodePosition(m *model.Message, fields []string) error {
	if len(fields) != 4 && len(fields) != 8 {
		return fmt.Errorf("expected 4 or 8 fields, got %d", len(fields))
	}
	var pos model.Position
	var err error
	if pos.X, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return errors.New("invalid x")
	}
	if pos.Y, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return errors.New("invalid y")
	}
	if pos.Angle, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return errors.New("invalid angle")
	}
	m.Position = &pos
	m.Confirmed = fields[3] == "1"
	if len(fields) == 8 {
		var vals [4]int
		for i := range vals {
			if vals[i], err = strconv.Atoi(fields[4+i]); err != nil {
				return errors.New("invalid arena")
			}
		}
		m.Arena = &model.Arena{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	}
	return nil
}

func decodeImage(fields []string) (*model.Image, error) {
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, errors.New("invalid seq")
	}
	w, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.New("invalid width")
	}
	h, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, errors.New("invalid height")
	}
	data, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return nil, err
	}
	if len(data) != w*h {
		return nil, fmt.Errorf("image data %d bytes, want %d", len(data), w*h)
	}
	return &model.Image{Seq: seq, Width: w, Height: h, TraceID: fields[3], Data: data}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
