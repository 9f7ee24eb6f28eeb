package amqp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"farmledger/internal/core"
	"farmledger/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{-1, 1 * time.Second},
	}

	for _, tt := range tests {
		if got := exponentialBackoff(tt.attempt); got != tt.expected {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("connection closed"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("use of closed network connection"), true},
		{amqp091.ErrClosed, true},
		{errors.New("invalid input"), false},
		{errors.New("some other error"), false},
	}

	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.expected {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestCircuitBreaker(t *testing.T) {
	client := &Client{url: "amqp://test", logger: testLogger()}

	if client.isCircuitOpen() {
		t.Fatal("circuit should start closed")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if client.state != StateOpen {
		t.Fatalf("state = %d, want open", client.state)
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit should be open after max failures")
	}

	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if client.isCircuitOpen() {
		t.Fatal("circuit should move to half-open after timeout")
	}
	if client.state != StateHalfOpen {
		t.Fatalf("state = %d, want half-open", client.state)
	}

	// A single failure while half-open reopens the circuit.
	client.recordFailure()
	if client.state != StateOpen {
		t.Fatalf("state = %d, want open after half-open failure", client.state)
	}

	client.recordSuccess()
	if client.state != StateClosed || client.failureCount != 0 {
		t.Fatalf("after success state=%d failures=%d", client.state, client.failureCount)
	}
}

func TestPublishFailsFast(t *testing.T) {
	msg := NewUpsertMessage(core.KindRevenue, "rev-1", "farm-1", 1)

	t.Run("circuit open", func(t *testing.T) {
		client := &Client{url: "amqp://test", logger: testLogger(), state: StateOpen, lastFailure: time.Now()}
		err := client.PublishLedgerSync(context.Background(), msg)
		if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		client := &Client{url: "amqp://test", logger: testLogger()}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := client.PublishLedgerSync(ctx, msg); err != context.Canceled {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("invalid message", func(t *testing.T) {
		client := &Client{url: "amqp://test", logger: testLogger()}
		err := client.PublishLedgerSync(context.Background(), LedgerSyncMessage{Kind: "subsidy", ID: "x", Op: OpUpsert})
		if err == nil || !strings.Contains(err.Error(), "invalid sync message") {
			t.Fatalf("err = %v", err)
		}
	})
}

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error { f.acked++; return nil }
func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(tag uint64, requeue bool) error { return nil }

func TestDispatch(t *testing.T) {
	good, _ := NewUpsertMessage(core.KindExpense, "exp-1", "farm-1", 3).ToJSON()

	tests := []struct {
		name        string
		body        []byte
		handlerErr  error
		wantAck     int
		wantNack    int
		wantRequeue bool
	}{
		{"success acks", good, nil, 1, 0, false},
		{"handler error requeues", good, errors.New("sheets down"), 0, 1, true},
		{"malformed body dropped", []byte("{not json"), nil, 0, 1, false},
		{"unknown kind dropped", []byte(`{"kind":"loan","id":"x","op":"upsert"}`), nil, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			client := &Client{logger: testLogger()}
			var got LedgerSyncMessage
			client.dispatch(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: tt.body},
				func(_ context.Context, msg LedgerSyncMessage) error {
					got = msg
					return tt.handlerErr
				})

			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.requeue != tt.wantRequeue {
				t.Fatalf("ack=%d nack=%d requeue=%v", ack.acked, ack.nacked, ack.requeue)
			}
			if tt.wantAck == 1 && (got.ID != "exp-1" || got.Version != 3) {
				t.Fatalf("handler got %+v", got)
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := NewDeleteMessage(core.KindRevenue, "rev-9", "farm-2")
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"op":"delete"`) {
		t.Fatalf("json = %s", data)
	}
	back, err := LedgerSyncMessageFromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != "rev-9" || back.Op != OpDelete || back.Kind != core.KindRevenue {
		t.Fatalf("decoded %+v", back)
	}
	if _, err := LedgerSyncMessageFromJSON([]byte(`{"kind":"revenue","op":"upsert"}`)); err == nil {
		t.Fatal("missing id should fail validation")
	}
}

func testLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}
