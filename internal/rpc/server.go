package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
)

const (
	jsonRPCVersion = "2.0"
	rpcErrorCode   = -32000
	maxMessageSize = 4 * 1024 * 1024
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	APIVer  string          `json:"api_version,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type ErrorPayload struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Data    *errinfo.ErrorInfo `json:"data,omitempty"`
}

// Handler serves one method. A non-nil ErrorInfo becomes the JSON-RPC error.
type Handler func(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo)

// Server speaks line-delimited JSON-RPC 2.0: requests from the UI arrive on r,
// responses and notifications leave on w.
type Server struct {
	apiVersion string
	reader     *bufio.Reader
	writer     *bufio.Writer
	mu         sync.Mutex
	handlers   map[string]Handler
	inflight   sync.WaitGroup
	logger     *slog.Logger
}

func NewServer(apiVersion string, r io.Reader, w io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		apiVersion: apiVersion,
		reader:     bufio.NewReaderSize(r, 64*1024),
		writer:     bufio.NewWriter(w),
		handlers:   make(map[string]Handler),
		logger:     logger,
	}
}

func (s *Server) Register(method string, handler Handler) {
	s.handlers[method] = handler
}

type readResult struct {
	line []byte
	err  error
}

// Serve returns nil on EOF or when ctx is done, after in-flight handlers finish.
func (s *Server) Serve(ctx context.Context) error {
	defer s.inflight.Wait()
	lines := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go s.readLoop(lines, done)

	for {
		var res readResult
		select {
		case <-ctx.Done():
			return nil
		case res = <-lines:
		}
		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			s.logger.Error("rpc.read_failed", "error", res.err.Error())
			return res.err
		}
		s.dispatch(ctx, res.line)
	}
}

func (s *Server) readLoop(out chan<- readResult, done <-chan struct{}) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 || err != nil {
			select {
			case out <- readResult{line: line, err: err}:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	if len(line) > maxMessageSize {
		s.logger.Warn("rpc.message_too_large", "bytes", len(line))
		s.sendError(nil, "message too large", nil)
		return
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("rpc.invalid_json", "error", err.Error())
		s.sendError(nil, "invalid json", nil)
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		s.logger.Warn("rpc.invalid_version", "version", req.JSONRPC)
		s.sendError(req.ID, "invalid jsonrpc version", nil)
		return
	}
	if req.APIVer != "" && req.APIVer != s.apiVersion {
		s.logger.Warn("rpc.incompatible_version", "requested", req.APIVer, "expected", s.apiVersion)
		s.sendError(req.ID, "incompatible api_version", errinfo.ValidationFailed("", "expected api_version "+s.apiVersion))
		return
	}
	handler, ok := s.handlers[req.Method]
	if !ok {
		s.logger.Warn("rpc.method_not_found", "method", req.Method)
		s.sendError(req.ID, fmt.Sprintf("method not found: %s", req.Method), nil)
		return
	}
	s.logger.Debug("rpc.request", "method", req.Method, "id", string(req.ID), "params", logging.RedactJSON(req.Params))
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handleRequest(ctx, req, handler)
	}()
}

func (s *Server) handleRequest(ctx context.Context, req Request, handler Handler) {
	result, info := handler(ctx, req.Params)
	if req.ID == nil {
		return
	}
	if info != nil {
		s.logger.Error("rpc.response_error", "method", req.Method, "id", string(req.ID), "error_code", info.ErrorCode, "detail", info.Detail)
		message := info.ErrorCode
		if info.Detail != "" {
			message = info.Detail
		}
		s.sendError(req.ID, message, info)
		return
	}
	s.logger.Debug("rpc.response", "method", req.Method, "id", string(req.ID), "result", logging.RedactAny(result))
	s.send(Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

// Notify sends a server-initiated message; it is safe for concurrent use.
func (s *Server) Notify(method string, params any) {
	s.logger.Debug("rpc.notify", "method", method)
	s.send(Notification{JSONRPC: jsonRPCVersion, Method: method, Params: params})
}

func (s *Server) sendError(id json.RawMessage, message string, data *errinfo.ErrorInfo) {
	s.send(Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &ErrorPayload{Code: rpcErrorCode, Message: message, Data: data},
	})
}

func (s *Server) send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("rpc.marshal_failed", "error", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(append(data, '\n'))
	_ = s.writer.Flush()
}
