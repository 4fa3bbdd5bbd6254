package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-upscale-mcp/internal/backend"
	"github.com/ironsheep/image-upscale-mcp/internal/config"
	"github.com/ironsheep/image-upscale-mcp/internal/imaging"
	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// Version is reported in the initialize handshake.
var Version = "0.1.0"

// BackendFactory builds the backend for one set of options.
type BackendFactory func(opts config.Options, log logrus.FieldLogger) (tiling.Backend, error)

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.ImageCache
	log      logrus.FieldLogger
	defaults config.Options
	factory  BackendFactory

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	key     string
	session *tiling.Session
	backend tiling.Backend
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger. Sessions log through it as well.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// WithDefaults sets the options tool calls start from.
func WithDefaults(opts config.Options) Option {
	return func(s *Server) { s.defaults = opts }
}

// WithBackendFactory replaces backend.New.
func WithBackendFactory(f BackendFactory) Option {
	return func(s *Server) { s.factory = f }
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

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts ...Option) *Server {
	s := &Server{
		cache:    imaging.NewImageCache(),
		log:      tiling.DiscardLogger(),
		defaults: config.Defaults(),
		sessions: make(map[string]*sessionEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = func(o config.Options, log logrus.FieldLogger) (tiling.Backend, error) {
			return backend.New(o, log)
		}
	}
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	defer s.Close()
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve answers newline-delimited requests from r on w until r is exhausted.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("Failed to parse request")
			continue
		}

		resp := s.handleRequest(&req)
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

// Close releases every cached session backend that holds resources.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	// RGB sessions also stand in for RGBA keys; release each one once.
	for _, e := range lo.Uniq(lo.Values(s.sessions)) {
		if c, ok := e.backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", e.key, err))
			}
		}
	}
	clear(s.sessions)
	return errors.Join(errs...)
}

// session returns the cached session for opts and channels, creating and
// configuring one on first use. When the backend cannot take an alpha
// channel, transparent images share the RGB session and imaging.Render
// scales their alpha separately.
func (s *Server) session(opts config.Options, channels int) (*tiling.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.openSession(opts, channels)
	if channels == 4 && errors.Is(err, tiling.ErrConfigurationMismatch) {
		s.log.WithError(err).Debug("Backend rejected alpha; rendering RGB")
		if e, err = s.openSession(opts, 3); err != nil {
			return nil, err
		}
		s.sessions[sessionKey(opts, channels)] = e
	}
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

func sessionKey(opts config.Options, channels int) string {
	return fmt.Sprintf("%s|c%d", opts.Key(), channels)
}

// openSession must be called with s.mu held.
func (s *Server) openSession(opts config.Options, channels int) (*sessionEntry, error) {
	key := sessionKey(opts, channels)
	if e, ok := s.sessions[key]; ok {
		return e, nil
	}

	log := s.log.WithField("session", key)
	b, err := s.factory(opts, log)
	if err != nil {
		return nil, err
	}
	sess, err := tiling.NewSession(b, opts.Tiling(channels), log)
	if err != nil {
		if c, ok := b.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	e := &sessionEntry{key: key, session: sess, backend: b}
	s.sessions[key] = e
	log.Debug("Session created")
	return e, nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
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
				"name":    "image-upscale-mcp",
				"version": Version,
			},
		},
	}
}

