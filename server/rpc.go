package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/lexcodex/ceylo/agents"
)

// JSON-RPC methods served by RPCServer.
const (
	MethodNew   = "conversation/new"
	MethodSend  = "conversation/send"
	MethodGet   = "conversation/get"
	MethodReset = "conversation/reset"
)

// Application error codes, in the implementation-defined server range.
const (
	CodeNotFound     int64 = -32001
	CodeBusy         int64 = -32002
	CodeEmptyMessage int64 = -32003
)

// ConversationParams identifies a conversation.
type ConversationParams struct {
	ID string `json:"id"`
}

// SendParams carries one user message.
type SendParams struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RPCServer serves conversations as JSON-RPC 2.0 with Content-Length framing.
type RPCServer struct {
	Conversations Conversations
	Logger        *log.Logger
}

// Serve runs the connection until the peer hangs up or ctx is cancelled.
func (s *RPCServer) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	select {
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-conn.DisconnectNotify():
		return nil
	}
}

func (s *RPCServer) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	if req.Notif {
		return nil, nil
	}
	result, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, rpcError(err)
	}
	return result, nil
}

func (s *RPCServer) dispatch(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case MethodNew:
		conv, err := s.Conversations.Create(ctx)
		if err != nil {
			return nil, err
		}
		view := NewConversationView(conv)
		return &view, nil
	case MethodSend:
		var params SendParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return s.Conversations.Send(ctx, params.ID, params.Text)
	case MethodGet:
		var params ConversationParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		conv, err := s.Conversations.Get(ctx, params.ID)
		if err != nil {
			return nil, err
		}
		view := NewConversationView(conv)
		return &view, nil
	case MethodReset:
		var params ConversationParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		conv, err := s.Conversations.Reset(ctx, params.ID)
		if err != nil {
			return nil, err
		}
		view := NewConversationView(conv)
		return &view, nil
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled: " + req.Method}
	}
}

func decodeParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func rpcError(err error) error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var code int64 = jsonrpc2.CodeInternalError
	switch {
	case errors.Is(err, agents.ErrConversationNotFound):
		code = CodeNotFound
	case errors.Is(err, agents.ErrBusy):
		code = CodeBusy
	case errors.Is(err, agents.ErrEmptyMessage):
		code = CodeEmptyMessage
	}
	return &jsonrpc2.Error{Code: code, Message: err.Error()}
}

// StdioConn joins a reader and a writer, e.g. os.Stdin and os.Stdout.
type StdioConn struct {
	Reader io.ReadCloser
	Writer io.WriteCloser
}

func (c StdioConn) Read(p []byte) (int, error)  { return c.Reader.Read(p) }
func (c StdioConn) Write(p []byte) (int, error) { return c.Writer.Write(p) }

// Close closes both ends.
func (c StdioConn) Close() error {
	rerr := c.Reader.Close()
	werr := c.Writer.Close()
	return errors.Join(rerr, werr)
}
