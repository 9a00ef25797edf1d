package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/quickscreen/internal/session"
	"github.com/1ureka/quickscreen/internal/util"
)

func init() {
	util.SetLogOutput(io.Discard)
}

type fakeSession struct {
	commands chan session.Command
	events   chan session.Event
	done     chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		commands: make(chan session.Command, 8),
		events:   make(chan session.Event, 8),
		done:     make(chan struct{}),
	}
}

func (f *fakeSession) Commands() chan<- session.Command { return f.commands }
func (f *fakeSession) Events() <-chan session.Event     { return f.events }
func (f *fakeSession) Done() <-chan struct{}            { return f.done }

func (f *fakeSession) end() {
	close(f.events)
	close(f.done)
}

// startServer runs a control server for sess on loopback and returns its URL.
func startServer(t *testing.T, sess session.Session) (url string, served <-chan error) {
	t.Helper()

	srv := NewServer(GeneratePIN(4))
	port, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(t.Context(), sess) }()

	return fmt.Sprintf("ws://127.0.0.1:%d/ws?pin=%s", port, srv.PIN()), errCh
}

func TestRelay(t *testing.T) {
	sess := newFakeSession()
	url, served := startServer(t, sess)

	// Queued before any controller is attached; replayed on connect.
	sess.events <- session.Event{Kind: session.EventJoinRequested, ID: 42}

	client, err := Connect(t.Context(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	ev, err := client.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if ev.Kind != session.EventJoinRequested || ev.ID != 42 {
		t.Fatalf("got %v(%v), want join_requested(42)", ev.Kind, ev.ID)
	}

	if err := client.Send(session.Command{Kind: session.CmdAccept, ID: 42}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case cmd := <-sess.commands:
		if cmd.Kind != session.CmdAccept || cmd.ID != 42 {
			t.Errorf("got %v(%v), want accept(42)", cmd.Kind, cmd.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not relayed")
	}

	sess.events <- session.Event{Kind: session.EventClientLeft, ID: 42}
	ev, err = client.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if ev.Kind != session.EventClientLeft || ev.ID != 42 {
		t.Errorf("got %v(%v), want client_left(42)", ev.Kind, ev.ID)
	}

	sess.end()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the session ended")
	}
}

func TestWrongPIN(t *testing.T) {
	sess := newFakeSession()
	defer sess.end()

	srv := NewServer("1234")
	port, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	go srv.Serve(t.Context(), sess)

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws?pin=0000", port)
	if c, err := Connect(t.Context(), url); err == nil {
		c.Close()
		t.Fatal("connected with a wrong PIN")
	}
}

func TestSecondControllerRejected(t *testing.T) {
	sess := newFakeSession()
	defer sess.end()
	url, _ := startServer(t, sess)

	first, err := Connect(t.Context(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer first.Close()

	second, err := Connect(t.Context(), url)
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	defer second.Close()

	_, err = second.Receive()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("second controller: got %v, want policy violation close", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	sess := newFakeSession()
	defer sess.end()

	srv := NewServer(GeneratePIN(4))
	if _, err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, sess) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestMessageConversion(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		cmd  bool
	}{
		{"stop", FromCommand(session.Command{Kind: session.CmdStop}), true},
		{"refuse", FromCommand(session.Command{Kind: session.CmdRefuse, ID: 7}), true},
		{"leave", FromCommand(session.Command{Kind: session.CmdLeave}), true},
		{"response", FromEvent(session.Event{Kind: session.EventJoinResponse, Accepted: true}), false},
		{"frame", FromEvent(session.Event{Kind: session.EventFrameReady, Payload: []byte{1, 2}}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := encode(tt.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			_, cmdErr := got.Command()
			_, evErr := got.Event()
			if tt.cmd && (cmdErr != nil || evErr == nil) {
				t.Errorf("%s: command=%v event=%v", got.Type, cmdErr, evErr)
			}
			if !tt.cmd && (cmdErr == nil || evErr != nil) {
				t.Errorf("%s: command=%v event=%v", got.Type, cmdErr, evErr)
			}
		})
	}
}

func TestGeneratePIN(t *testing.T) {
	pin := GeneratePIN(4)
	if len(pin) != 4 {
		t.Fatalf("length: got %d", len(pin))
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in %q", pin)
		}
	}
}
