package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn multiplexes concurrent round trips over one TCP connection.
//
// Each request gets a unique sequence number; a dedicated recvLoop goroutine
// reads response frames and routes each to the waiting caller through its
// pending channel, so responses may arrive in any order.
type Conn struct {
	conn    net.Conn
	seq     uint32     // next sequence number (protected by sending)
	pending sync.Map   // map[uint32]chan roundTripResult
	sending sync.Mutex // serializes frame writes; interleaved writes corrupt the stream
}

type roundTripResult struct {
	data []byte
	err  error
}

// NewConn wraps nc and starts the receive and heartbeat loops.
func NewConn(nc net.Conn) *Conn {
	c := &Conn{conn: nc}
	go c.recvLoop()
	go c.heartbeatLoop(30 * time.Second)
	return c
}

// Dial connects to addr over TCP and returns a multiplexed Conn.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// RoundTrip sends one encoded message and blocks for its response bytes.
// It has the signature sender.RawSendFunc expects.
func (c *Conn) RoundTrip(ctx context.Context, data []byte) ([]byte, error) {
	respChan := make(chan roundTripResult, 1) // buffered so recvLoop never blocks

	c.sending.Lock()
	c.seq++
	seq := c.seq
	// Register before writing so the response cannot race the registration.
	c.pending.Store(seq, respChan)
	header := Header{
		FrameType: FrameRequest,
		Seq:       seq,
		BodyLen:   uint32(len(data)),
	}
	err := WriteFrame(c.conn, &header, data)
	c.sending.Unlock()
	if err != nil {
		c.pending.Delete(seq)
		return nil, err
	}

	select {
	case res := <-respChan:
		return res.data, res.err
	case <-ctx.Done():
		c.pending.Delete(seq)
		return nil, ctx.Err()
	}
}

// Close tears down the connection; pending callers fail with the read error.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// recvLoop is the single reader for this connection. Frame boundaries only
// parse correctly with sequential reads, so there is exactly one.
func (c *Conn) recvLoop() {
	for {
		header, body, err := ReadFrame(c.conn)
		if err != nil {
			c.closeAllPending(fmt.Errorf("connection lost: %w", err))
			return
		}
		if header.FrameType == FrameHeartbeat {
			continue
		}
		if channel, ok := c.pending.LoadAndDelete(header.Seq); ok {
			channel.(chan roundTripResult) <- roundTripResult{data: body}
		}
	}
}

func (c *Conn) closeAllPending(err error) {
	c.pending.Range(func(key, value any) bool {
		value.(chan roundTripResult) <- roundTripResult{err: err}
		c.pending.Delete(key)
		return true
	})
}

// heartbeatLoop keeps the connection visibly alive for the server side.
func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		header := &Header{FrameType: FrameHeartbeat}
		c.sending.Lock()
		err := WriteFrame(c.conn, header, nil)
		c.sending.Unlock()
		if err != nil {
			return
		}
	}
}
