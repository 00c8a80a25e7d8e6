package server

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/roomsync/pkg/engine"
)

type nopEvents struct{}

func (nopEvents) Message(engine.Socket, engine.Frame) {}
func (nopEvents) Close(engine.Socket, int, string)    {}
func (nopEvents) Error(engine.Socket, error)          {}

func TestConn_SendQueueOverflowCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendQueue = 2
	c := newConn(nil, "s1", nopEvents{}, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 2; i++ {
		if err := c.Send(engine.Text("x")); err != nil {
			t.Fatalf("Send() %d error = %v", i, err)
		}
	}
	if err := c.Send(engine.Text("overflow")); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("Send() on full queue = %v, want ErrSendQueueFull", err)
	}
	if c.closeCode != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", c.closeCode, websocket.ClosePolicyViolation)
	}
	if err := c.Send(engine.Text("late")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send() after close = %v, want ErrConnectionClosed", err)
	}
}

func TestConn_CloseOnce(t *testing.T) {
	c := newConn(nil, "s1", nopEvents{}, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	c.Close(4000, "session replaced")
	c.Close(1011, "internal error")
	if c.closeCode != 4000 || c.closeReason != "session replaced" {
		t.Errorf("close = %d %q, want first close to win", c.closeCode, c.closeReason)
	}
	if c.ID() == "" || c.SessionID() != "s1" {
		t.Errorf("ID() = %q SessionID() = %q", c.ID(), c.SessionID())
	}
}
