// Package grpc provides a lightweight JSON-over-TCP RPC framework used
// between the analyzer service and remote analysis engines.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// Request is answered by exactly one Response carrying the same ID.
//
// Example server:
//
//	s := grpc.NewServer()
//	s.Register(proto.MethodParse, func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var parseReq proto.ParseRequest
//	    json.Unmarshal(req, &parseReq)
//	    // ... analyse sentences ...
//	    return &proto.ParseResponse{...}, nil
//	})
//	s.Serve(":9400")
//
// Example client:
//
//	c, _ := grpc.Dial("localhost:9400")
//	var resp proto.ParseResponse
//	c.Call(ctx, proto.MethodParse, &proto.ParseRequest{...}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	conns    map[net.Conn]struct{}
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Listen binds addr. Call Serve afterwards to accept connections.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve listens on addr if Listen was not called and accepts connections
// until Stop is called.
func (s *Server) Serve(addr string) error {
	if s.Addr() == nil {
		if err := s.Listen(addr); err != nil {
			return err
		}
	}
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) (resp Response) {
	resp.ID = req.ID
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic", "method", req.Method, "panic", r)
			resp.Data = nil
			resp.Error = fmt.Sprintf("internal error in %s", req.Method)
		}
	}()
	data, err := handler(s.ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("marshaling result: %v", err)
		return resp
	}
	resp.Data = raw
	return resp
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and every open connection, cancels running
// handlers, and waits for them to return.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
