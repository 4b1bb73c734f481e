// Package rpc is a small JSON-over-TCP RPC layer. Requests and responses
// are newline-delimited JSON objects on a persistent connection; responses
// may arrive out of order and are matched to requests by id, so one
// connection carries many concurrent calls.
//
//	s := rpc.NewServer()
//	s.Register("MatchService.Rank", func(ctx context.Context, params json.RawMessage) (any, error) {
//	    ...
//	})
//	go s.Serve(":5001")
//
//	c, _ := rpc.Dial(ctx, "localhost:5001")
//	var reply matching.RankReply
//	err := c.Call(ctx, "MatchService.Rank", params, &reply)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// HandlerFunc serves one method. The returned value is marshalled as the
// response data.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Request is the wire form of a call. TimeoutMs carries the caller's
// remaining deadline budget.
type Request struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
}

// Response is the wire form of a reply. Status mirrors the HTTP status the
// same error would produce on the HTTP surface and Kind is its stable code.
type Response struct {
	ID     string          `json:"id"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status int             `json:"status,omitempty"`
	Kind   string          `json:"kind,omitempty"`
}

// maxInFlight bounds concurrent calls per connection.
const maxInFlight = 16

type Server struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	methods  map[string]HandlerFunc
	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:  slog.Default().With("component", "rpc-server"),
		ctx:     ctx,
		cancel:  cancel,
		methods: make(map[string]HandlerFunc),
	}
}

// Register binds method to fn, replacing any earlier binding.
func (s *Server) Register(method string, fn HandlerFunc) {
	s.mu.Lock()
	s.methods[method] = fn
	s.mu.Unlock()
}

func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.methods)
}

// Serve listens on addr and blocks until Stop.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts on ln and blocks until Stop.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String(), "methods", s.MethodCount())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	var (
		writeMu sync.Mutex
		calls   sync.WaitGroup
		sem     = semaphore.NewWeighted(maxInFlight)
		enc     = json.NewEncoder(conn)
		dec     = json.NewDecoder(conn)
	)
	defer calls.Wait()

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			var typeErr *json.UnmarshalTypeError
			var syntaxErr *json.SyntaxError
			switch {
			case errors.As(err, &typeErr):
				s.reject(conn, enc, &writeMu, req.ID, err)
				continue
			case errors.As(err, &syntaxErr):
				// the stream cannot be resynchronised after a syntax error
				s.reject(conn, enc, &writeMu, "", err)
			}
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		calls.Add(1)
		go func() {
			defer calls.Done()
			defer sem.Release(1)
			resp := s.dispatch(ctx, req)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := enc.Encode(resp); err != nil {
				s.logger.Warn("writing response failed", "method", req.Method, "error", err)
				cancel()
			}
		}()
	}
}

// reject answers a line that does not decode into a Request.
func (s *Server) reject(conn net.Conn, enc *json.Encoder, writeMu *sync.Mutex, id string, cause error) {
	s.logger.Warn("malformed rpc request", "remote", conn.RemoteAddr().String(), "error", cause)
	writeMu.Lock()
	defer writeMu.Unlock()
	enc.Encode(Response{ID: id, Error: "invalid request", Status: http.StatusBadRequest, Kind: "invalid_request"})
}

func (s *Server) dispatch(ctx context.Context, req Request) (resp Response) {
	resp.ID = req.ID

	s.mu.RLock()
	fn, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = "unknown method " + req.Method
		resp.Status = http.StatusNotFound
		resp.Kind = "unknown_method"
		return resp
	}

	ctx = logger.With(logger.WithRequestID(ctx, req.ID), "method", req.Method)
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "rpc handler panic", "panic", p)
			resp = Response{ID: req.ID, Error: "internal error", Status: http.StatusInternalServerError, Kind: "internal"}
		}
	}()

	out, err := fn(ctx, req.Params)
	var raw []byte
	if err == nil {
		raw, err = json.Marshal(out)
	}
	if err == nil {
		resp.Data = raw
		return resp
	}
	resp.Error = apperrors.PublicMessage(err)
	resp.Status = apperrors.HTTPStatusCode(err)
	resp.Kind = apperrors.Code(err)
	if resp.Status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "rpc call failed", "error", err)
	}
	return resp
}

// Stop closes the listener and every connection, then waits for in-flight
// calls to return.
func (s *Server) Stop() {
	s.cancel()
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
