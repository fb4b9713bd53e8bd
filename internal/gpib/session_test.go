package gpib

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTerminationConfig(t *testing.T) {
	cfg := DefaultTerminationConfig()

	assert.True(t, cfg.SendEOI)
	assert.True(t, cfg.EndReadOnEOI)
	assert.False(t, cfg.EndReadOnEOS)
	assert.Equal(t, byte('\n'), cfg.EOSChar)
	assert.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
}

func TestSession_WriteUsesAddressAndConfig(t *testing.T) {
	ctl := &fakeController{open: true}
	bus := NewBus(ctl)
	s, err := bus.Instrument(22)
	require.NoError(t, err)

	cfg := DefaultTerminationConfig()
	cfg.SendEOI = false
	s.Configure(cfg)

	require.NoError(t, s.Write(context.Background(), []byte("*IDN?")))
	require.Len(t, ctl.addrs, 1)
	assert.Equal(t, 22, ctl.addrs[0])
	assert.False(t, ctl.cfgs[0].SendEOI)
	assert.Equal(t, []byte("*IDN?"), ctl.written[0])
}

func TestSession_ConfigureDoesNotTouchHardware(t *testing.T) {
	ctl := &fakeController{open: true}
	bus := NewBus(ctl)
	s, err := bus.Instrument(22)
	require.NoError(t, err)

	cfg := DefaultTerminationConfig()
	cfg.EndReadOnEOS = true
	s.Configure(cfg)

	assert.Empty(t, ctl.written)
	assert.Zero(t, ctl.reads)
}

func TestSession_ConfigureDefaultsReadTimeout(t *testing.T) {
	ctl := &fakeController{open: true}
	bus := NewBus(ctl)
	s, _ := bus.Instrument(22)

	s.Configure(TerminationConfig{SendEOI: true})
	assert.Equal(t, 500*time.Millisecond, s.Config().ReadTimeout)
}

func TestSession_QueryTrimsTerminators(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		eos   bool
		want  string
	}{
		{"crlf with eos", []byte("HP3457A\r\n"), true, "HP3457A"},
		{"lf only with eos", []byte("HP3457A\n"), true, "HP3457A"},
		{"cr only", []byte("HP3457A\r"), false, "HP3457A"},
		{"bare", []byte("HP3457A"), true, "HP3457A"},
		{"empty", nil, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeController{open: true, reply: tt.reply}
			bus := NewBus(ctl)
			s, err := bus.Instrument(22)
			require.NoError(t, err)

			cfg := DefaultTerminationConfig()
			cfg.EndReadOnEOS = tt.eos
			s.Configure(cfg)

			got, err := s.Query(context.Background(), "ID?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_QueryOrdersWriteBeforeRead(t *testing.T) {
	ctl := &fakeController{open: true, reply: []byte("ok")}
	bus := NewBus(ctl)
	s, _ := bus.Instrument(7)

	_, err := s.Query(context.Background(), "MEAS?")
	require.NoError(t, err)
	require.Len(t, ctl.written, 1)
	assert.Equal(t, 1, ctl.reads)
}

func TestSession_ClosedControllerFailsHard(t *testing.T) {
	ctl := &fakeController{open: true}
	bus := NewBus(ctl)
	s, _ := bus.Instrument(22)

	require.NoError(t, ctl.Close())

	err := s.Write(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
