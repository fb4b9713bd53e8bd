package gpib

import (
	"bytes"
	"context"
)

// Session is a text I/O handle to one instrument on the bus. It keeps a
// reference to its controller but does not own it: the controller may be
// closed independently, in which case transfers fail with ErrClosed.
type Session struct {
	ctl  Controller
	addr int
	cfg  TerminationConfig
}

// Address returns the instrument's primary address.
func (s *Session) Address() int { return s.addr }

// Config returns the session's current termination configuration.
func (s *Session) Config() TerminationConfig { return s.cfg }

// Configure replaces the termination configuration. No hardware is touched;
// the configuration applies from the next Read or Write on.
func (s *Session) Configure(cfg TerminationConfig) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultTerminationConfig().ReadTimeout
	}
	s.cfg = cfg
}

// Read reads one message from the instrument. The transfer ends on the
// condition selected in the session configuration (EOI, EOS, or timeout).
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	return s.ctl.ReadMessage(ctx, s.addr, s.cfg)
}

// Write sends data to the instrument.
func (s *Session) Write(ctx context.Context, data []byte) error {
	return s.ctl.WriteMessage(ctx, s.addr, data, s.cfg)
}

// Query writes cmd and reads the reply, with trailing terminators trimmed.
// There is no atomicity beyond ordering: another controller addressing the
// bus between the two transfers is not defended against.
func (s *Session) Query(ctx context.Context, cmd string) (string, error) {
	if err := s.Write(ctx, []byte(cmd)); err != nil {
		return "", err
	}
	reply, err := s.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(s.trim(reply)), nil
}

// trim drops the trailing EOS terminator (and a preceding carriage return)
// from a reply, when EOS termination is in effect.
func (s *Session) trim(reply []byte) []byte {
	if s.cfg.EndReadOnEOS {
		reply = bytes.TrimSuffix(reply, []byte{s.cfg.EOSChar})
	}
	return bytes.TrimSuffix(reply, []byte{'\r'})
}
