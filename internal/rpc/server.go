package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/kittclouds/memoryd/pkg/pool"
)

// maxLineBytes bounds one JSON-RPC request/response line. Requests carrying
// large content (store_memory) can exceed the default bufio.Scanner line
// limit, so the buffer is grown up front rather than on overflow.
const maxLineBytes = 16 * 1024 * 1024

// Server reads line-delimited JSON-RPC 2.0 requests from r, dispatches
// them, and writes responses to w. One line in, at most one line out; a
// request with no ID (a notification) still runs its handler but produces
// no response line, as the wire protocol requires.
type Server struct {
	dispatcher *Dispatcher
	log        *zap.Logger
}

// NewServer wraps a Dispatcher in the line-delimited transport loop.
func NewServer(d *Dispatcher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{dispatcher: d, log: log}
}

// Serve blocks, processing requests until r is exhausted, ctx is cancelled,
// or a write to w fails. Each request is handled synchronously in read
// order; a slow handler delays the next line's dispatch but never corrupts
// framing, since dispatch only ever emits one complete JSON object per line.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("malformed request line, skipping", zap.Error(err))
			resp := Response{JSONRPC: "2.0", Error: &WireError{Code: codeParseError, Message: "parse error", Kind: "InvalidParams"}}
			if encErr := s.writeResponse(w, resp); encErr != nil {
				return encErr
			}
			continue
		}

		resp := s.dispatcher.Handle(ctx, req)
		if req.ID == nil {
			continue // notification: no response line
		}
		if err := s.writeResponse(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) writeResponse(w io.Writer, resp Response) error {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(resp); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
