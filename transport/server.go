package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"typed-msg/receiver"
	"typed-msg/registry"
)

// Server accepts framed connections and feeds every request frame to a
// Receiver. Because Receiver.Handle never fails, every request frame gets a
// response frame with the same sequence number.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → per request: go handleRequest → receiver.Handle → write response frame
type Server struct {
	recv          *receiver.Receiver
	logger        *zap.Logger
	listener      net.Listener
	wg            sync.WaitGroup // in-flight requests, for graceful shutdown
	shutdown      atomic.Bool    // suppresses the Accept error caused by Close
	registry      registry.Registry
	service       string
	advertiseAddr string // registered address; differs from ":port", which is not routable
}

func NewServer(recv *receiver.Receiver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{recv: recv, logger: logger}
}

// Serve listens on address and handles connections until Shutdown.
//
// When reg is non-nil the server registers service/advertiseAddr there with a
// 10-second lease so clients can discover it; pass nil to skip discovery.
func (s *Server) Serve(network, address string, service, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = listener

	s.service = service
	s.advertiseAddr = advertiseAddr
	if reg != nil {
		s.registry = reg
		if err := reg.Register(service, registry.ServiceInstance{Addr: advertiseAddr}, 10); err != nil {
			listener.Close()
			return fmt.Errorf("registering %s: %w", service, err)
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener; that Accept error is expected.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Addr returns the listening address, or nil before Serve has bound it.
// Useful when serving on an ephemeral port.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleConn reads frames sequentially (a single reader per connection keeps
// frame boundaries intact) and dispatches each request to its own goroutine,
// so one slow handler cannot stall the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	writeMu := &sync.Mutex{} // shared by all request goroutines on this conn
	for {
		header, body, err := ReadFrame(conn)
		if err != nil {
			return // connection closed or stream corrupted
		}
		if header.FrameType == FrameHeartbeat {
			continue
		}
		// Count the request here, not inside the goroutine, so a request
		// dispatched just before Shutdown is never missed by wg.Wait.
		s.wg.Add(1)
		go s.handleRequest(header, body, conn, writeMu)
	}
}

func (s *Server) handleRequest(header *Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer s.wg.Done()

	result := s.recv.Handle(context.Background(), body)

	writeMu.Lock()
	defer writeMu.Unlock()

	replyHeader := Header{
		FrameType: FrameResponse,
		Seq:       header.Seq, // same seq as the request; this is how multiplexing works
		BodyLen:   uint32(len(result)),
	}
	if err := WriteFrame(conn, &replyHeader, result); err != nil {
		s.logger.Warn("failed to write response frame", zap.Error(err))
	}
}

// Shutdown deregisters from discovery, stops accepting, and waits up to
// timeout for in-flight requests to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	// Deregister first so clients stop routing new requests here.
	if s.registry != nil {
		if err := s.registry.Deregister(s.service, s.advertiseAddr); err != nil {
			s.logger.Warn("failed to deregister", zap.Error(err))
		}
	}

	// Flag before closing the listener, so Serve treats the Accept error as
	// an intentional stop rather than a failure.
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for in-flight requests to finish")
	}
}
