package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/thermo-ocr/internal/camera"
	"github.com/ironsheep/thermo-ocr/internal/ocr"
	"github.com/ironsheep/thermo-ocr/internal/sampler"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

// Storage is the storage sink as seen by the storage_* tools.
type Storage interface {
	sink.Store
	Path() string
	Connect(ctx context.Context) error
	Disconnect() error
	TestConnection(ctx context.Context) (string, error)
	Count(ctx context.Context) (int, error)
}

// Deps are the collaborators the tools operate on. Loop, Frames, Selection
// and Engine are required; Storage may be nil when no database is configured.
type Deps struct {
	Loop      *sampler.Loop
	Frames    camera.Frames
	Selection *camera.Selection
	Engine    ocr.Engine
	Storage   Storage
	Version   string
	Log       *logrus.Entry
}

// Server handles MCP protocol communication
type Server struct {
	loop      *sampler.Loop
	frames    camera.Frames
	selection *camera.Selection
	engine    ocr.Engine
	storage   Storage
	version   string
	log       *logrus.Entry
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(d Deps) (*Server, error) {
	if d.Loop == nil || d.Frames == nil || d.Selection == nil || d.Engine == nil {
		return nil, fmt.Errorf("server: loop, frames, selection and OCR engine are required")
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if d.Version == "" {
		d.Version = "dev"
	}
	return &Server{
		loop:      d.Loop,
		frames:    d.Frames,
		selection: d.Selection,
		engine:    d.Engine,
		storage:   d.Storage,
		version:   d.Version,
		log:       d.Log,
	}, nil
}

// Run serves MCP on stdin and stdout until stdin closes or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to w.
// It returns when r is exhausted or ctx ends between requests.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("Failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.WithError(err).Error("Failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "thermo-ocr",
				"version": s.version,
			},
		},
	}
}
