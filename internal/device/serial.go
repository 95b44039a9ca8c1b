// Package device implements SerialDevice using go.bug.st/serial,
// which provides real serial communication support for the robot link.
package device

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

type lineResult struct {
	line string
	err  error
}

// SerialDevice implements Device over any byte stream. A single reader
// goroutine owns the stream and hands complete lines to ReadLine, so a line
// that arrives after a timeout is kept for the next caller instead of lost.
type SerialDevice struct {
	name  string
	port  io.ReadWriteCloser
	wmu   sync.Mutex
	lines chan lineResult
	done  chan struct{}
	once  sync.Once
}

// NewSerialDevice opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return NewStreamDevice(dev, p), nil
}

// NewStreamDevice wraps an already open stream (serial port, pty, pipe).
func NewStreamDevice(name string, rw io.ReadWriteCloser) *SerialDevice {
	s := &SerialDevice{
		name:  name,
		port:  rw,
		lines: make(chan lineResult, 16),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *SerialDevice) readLoop() {
	defer close(s.lines)
	r := bufio.NewReader(s.port)
	for {
		line, err := r.ReadString('\n')
		res := lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
		if err != nil && res.line == "" {
			return
		}
		select {
		case s.lines <- res:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// ReadLine reads a single line from the device, blocking until newline or timeout.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	var after <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		after = t.C
	}
	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", ErrClosed
		}
		return res.line, nil
	case <-after:
		return "", ErrReadTimeout
	case <-s.done:
		return "", ErrClosed
	}
}

// Discard drops every line already received and returns how many were dropped.
func (s *SerialDevice) Discard() int {
	n := 0
	for {
		select {
		case _, ok := <-s.lines:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// WriteLine writes a single line followed by '\n' to the device.
func (s *SerialDevice) WriteLine(line string) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.port.Write(append([]byte(line), '\n'))
	if err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}

// Close closes the underlying connection. It is safe to call more than once.
func (s *SerialDevice) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}
