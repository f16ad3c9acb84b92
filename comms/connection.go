// File: comms/connection.go
package comms

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lguibr/arena/wire"
)

var (
	// ErrConnectionNotActive reports an operation on a connection that has
	// already transitioned to done, or whose peer is gone.
	ErrConnectionNotActive = errors.New("connection is not active")

	// ErrConnectionTimedOut reports an exhausted time budget. Once raised by
	// a timed wrapper it is permanent for that wrapper.
	ErrConnectionTimedOut = errors.New("connection timed out")
)

// HandshakeFailedError reports a peer whose stream ended before it announced
// its handshake key. Everything the peer wrote before dying travels along as
// prints.
type HandshakeFailedError struct {
	Prints string
}

func (e *HandshakeFailedError) Error() string {
	return "handshake failed before a key was announced"
}

// Connection is the host's view of one player's framed duplex stream.
// A connection is not safe for concurrent operations; callers issue at most
// one Call/Ping/Close at a time.
type Connection interface {
	Call(ctx context.Context, method string, kwargs map[string]any) (json.RawMessage, error)
	Ping(ctx context.Context) (time.Duration, error)
	Close(ctx context.Context) error
	Complete(ctx context.Context) ([]json.RawMessage, error)
	Prints() string
}

// Player streams can print arbitrarily long lines; anything beyond this is
// treated as a broken stream.
const maxLineBytes = 1 << 20

// resultBacklog bounds how many undelivered results the reader queues before
// it blocks. Complete drains whatever is left.
const resultBacklog = 64

// MessageConnection speaks the framed line protocol over any byte stream.
// It announces the host's handshake key on construction and runs a single
// reader goroutine that splits inbound traffic into results and prints.
type MessageConnection struct {
	rw  io.ReadWriteCloser
	log *zap.SugaredLogger

	results    chan json.RawMessage
	readerDone chan struct{}
	readErr    error // written by the reader before readerDone closes

	wmu sync.Mutex // serialises writes

	mu     sync.Mutex
	prints []string
	closed bool // an END has been sent by us
}

// NewMessageConnection takes ownership of the stream, sends the host's
// NEW_KEY and starts the reader.
func NewMessageConnection(rw io.ReadWriteCloser, log *zap.SugaredLogger) *MessageConnection {
	c := &MessageConnection{
		rw:         rw,
		log:        log,
		results:    make(chan json.RawMessage, resultBacklog),
		readerDone: make(chan struct{}),
	}
	if err := c.send(wire.TypeNewKey, wire.NewHandshakeKey()); err != nil {
		c.log.Warnw("handshake key send failed", "error", err)
	}
	go c.readLoop()
	return c
}

func (c *MessageConnection) readLoop() {
	defer close(c.readerDone)
	scanner := bufio.NewScanner(c.rw)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	handshaken := false
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		msg, ok := wire.DecodeLine([]byte(raw))
		if !ok {
			continue
		}
		if !handshaken {
			// Nothing before the peer's key is trusted as protocol. The raw
			// lines survive as prints so a dead submission is debuggable.
			if msg.Type == wire.TypeNewKey {
				handshaken = true
				continue
			}
			c.addPrint(raw)
			continue
		}
		switch msg.Type {
		case wire.TypeResult:
			if fs, ok := wire.DecodeData(msg.Data).(*wire.Failsafe); ok {
				c.log.Errorw("peer failsafe tripped, dropping connection", "detail", fs.Str)
				return
			}
			c.results <- msg.Data
		case wire.TypePrint:
			c.addPrint(msg.Text())
		case wire.TypeEnd:
			return
		case wire.TypeNewKey:
			// a repeated key announcement carries no information
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Debugw("stream read ended", "error", err)
	}
	if !handshaken {
		c.readErr = &HandshakeFailedError{Prints: c.Prints()}
	}
}

func (c *MessageConnection) addPrint(text string) {
	c.mu.Lock()
	c.prints = append(c.prints, text)
	c.mu.Unlock()
}

func (c *MessageConnection) send(msgType string, data any) error {
	line, err := wire.EncodeMessage(msgType, data)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.rw.Write(line); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionNotActive, err)
	}
	return nil
}

// failIfDone guards every operation: once we closed or the reader finished,
// the connection is done and stays done.
func (c *MessageConnection) failIfDone() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnectionNotActive
	}
	select {
	case <-c.readerDone:
		return c.doneErr()
	default:
		return nil
	}
}

func (c *MessageConnection) doneErr() error {
	var hs *HandshakeFailedError
	if errors.As(c.readErr, &hs) {
		return hs
	}
	return ErrConnectionNotActive
}

func (c *MessageConnection) nextResult(ctx context.Context) (json.RawMessage, error) {
	select {
	case data := <-c.results:
		return data, nil
	case <-c.readerDone:
		// a result emitted just before the peer ended still answers the
		// in-flight operation
		select {
		case data := <-c.results:
			return data, nil
		default:
		}
		return nil, c.doneErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call sends a named invocation and blocks for the next inbound result.
// Prints arriving in between accumulate in the buffer without being
// consumed as the response.
func (c *MessageConnection) Call(ctx context.Context, method string, kwargs map[string]any) (json.RawMessage, error) {
	if err := c.failIfDone(); err != nil {
		return nil, err
	}
	if err := c.send(wire.TypeResult, wire.NewCall(method, kwargs)); err != nil {
		return nil, err
	}
	return c.nextResult(ctx)
}

// Ping measures one round trip through the peer harness.
func (c *MessageConnection) Ping(ctx context.Context) (time.Duration, error) {
	if err := c.failIfDone(); err != nil {
		return 0, err
	}
	start := time.Now()
	if err := c.send(wire.TypeResult, wire.NewPing()); err != nil {
		return 0, err
	}
	data, err := c.nextResult(ctx)
	if err != nil {
		return 0, err
	}
	var pong string
	if err := json.Unmarshal(data, &pong); err != nil || pong != wire.Pong {
		return 0, fmt.Errorf("ping: unexpected reply %s", data)
	}
	return time.Since(start), nil
}

// Close tells the peer we are finished. Idempotent; every operation after
// the first Close fails with ErrConnectionNotActive.
func (c *MessageConnection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.send(wire.TypeEnd, nil)
}

// Complete closes the connection and drains whatever the peer still emits,
// returning the residual results. Stray prints keep accumulating in the
// buffer while draining.
func (c *MessageConnection) Complete(ctx context.Context) ([]json.RawMessage, error) {
	_ = c.Close(ctx)
	var residue []json.RawMessage
	for {
		select {
		case data := <-c.results:
			residue = append(residue, data)
		case <-c.readerDone:
			for {
				select {
				case data := <-c.results:
					residue = append(residue, data)
					continue
				default:
				}
				break
			}
			return residue, nil
		case <-ctx.Done():
			return residue, ctx.Err()
		}
	}
}

// Prints returns everything the peer printed so far, joined by newlines.
func (c *MessageConnection) Prints() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.prints, "\n")
}
