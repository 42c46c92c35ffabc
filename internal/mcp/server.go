// Package mcp serves the briefing tools over the Model Context Protocol:
// line-delimited JSON-RPC 2.0 on stdio.
package mcp

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

	"github.com/DariyDar/astra/internal/briefing"
)

const protocolVersion = "2024-11-05"

// Briefer is the query façade the tools call.
type Briefer interface {
	Briefing(ctx context.Context, req briefing.BriefingRequest) briefing.Outcome
	SearchEverywhere(ctx context.Context, req briefing.SearchRequest) briefing.Outcome
}

// Server implements the MCP server for the briefing tools.
type Server struct {
	briefer Briefer
	version string
	logger  *slog.Logger

	mu sync.Mutex // serializes writes
}

func NewServer(b Briefer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{briefer: b, version: version, logger: logger}
}

// MCP Protocol Types

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type CallToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("mcp server started", "version", s.version)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadBytes('\n')
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				select {
				case lines <- trimmed:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			if err := s.handleLine(ctx, w, line); err != nil {
				return err
			}
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				s.logger.Info("mcp client closed stdin")
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, w io.Writer, line []byte) error {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return s.send(w, &Response{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &Error{Code: codeParseError, Message: "Parse error"}})
	}
	resp := s.handleRequest(ctx, &req)
	if resp == nil {
		return nil
	}
	return s.send(w, resp)
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.result(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "Astra Briefing Server", Version: s.version},
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		})
	case "tools/list":
		return s.result(req, ListToolsResult{Tools: toolDefinitions()})
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "ping":
		return s.result(req, struct{}{})
	}
	if len(req.ID) == 0 {
		// Notifications, including notifications/initialized, get no reply.
		return nil
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: codeMethodNotFound, Message: "Method not found"}}
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: codeInvalidParams, Message: "Invalid params"}}
	}
	s.logger.Info("tool call", "tool", params.Name, "args", string(params.Arguments))

	out := s.callTool(ctx, params.Name, params.Arguments)
	text, err := json.Marshal(out)
	if err != nil {
		text, _ = json.Marshal(briefing.Outcome{Err: fmt.Sprintf("encode result: %v", err)})
	}
	if out.OK() {
		s.logger.Info("tool ok",
			"tool", params.Name,
			"sources_ok", out.Result.Meta.SourcesOK,
			"sources_failed", out.Result.Meta.SourcesFailed,
			"items", out.Result.Meta.TotalItems,
			"size", len(text),
			"time_ms", out.Result.Meta.QueryTimeMs,
		)
	} else {
		s.logger.Warn("tool error", "tool", params.Name, "error", out.Err)
	}
	return s.result(req, CallToolResult{
		Content: []ToolContent{{Type: "text", Text: string(text)}},
		IsError: !out.OK(),
	})
}

func (s *Server) result(req *Request, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: v}
}

func (s *Server) send(w io.Writer, resp *Response) error {
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
