package mcp

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/kuitang/notekeeper/internal/logutil"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/obs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with notes handling
type Server struct {
	mcpServer   *mcp.Server
	handler     *Handler
	httpHandler http.Handler
}

const (
	mcpDebugBodyLogLimitBytes = 8 * 1024
)

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        []byte
	truncated   bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, 512),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wroteHeader = true
	if len(w.body) < mcpDebugBodyLogLimitBytes {
		remaining := mcpDebugBodyLogLimitBytes - len(w.body)
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Implementation identifies this server to MCP clients.
var Implementation = &mcp.Implementation{
	Name:    "notekeeper",
	Version: "1.0.0",
}

// NewServer creates a new MCP server exposing the notes tools.
func NewServer(provider *notes.Provider) *Server {
	handler := NewHandler(provider)

	mcpServer := mcp.NewServer(Implementation, nil)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}
	registerPrompts(mcpServer)

	httpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			// Plain application/json responses, no SSE streams.
			JSONResponse: true,
			// Every request stands alone; there is no per-client session state.
			Stateless: true,
		},
	)

	return &Server{
		mcpServer:   mcpServer,
		handler:     handler,
		httpHandler: httpHandler,
	}
}

// ServeHTTP implements http.Handler for the Streamable HTTP transport.
// Request and response bodies are logged, redacted, at debug level.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := obs.From(r.Context()).With("pkg", "mcp")
	debug := obs.Level() <= slog.LevelDebug

	if debug && r.Body != nil && r.Method == http.MethodPost {
		reqBody, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error("mcp_request_body_read_failed", "error", err)
		} else {
			r.Body = io.NopCloser(bytes.NewReader(reqBody))
			logger.Debug(
				"mcp_request",
				"method", r.Method,
				"headers", logutil.FormatHeadersForLog(r.Header),
				"body", logutil.FormatBodyForLog(r.Header.Get("Content-Type"), reqBody, mcpDebugBodyLogLimitBytes, false),
			)
		}
	}

	respLogger := newMCPResponseLogger(w)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("mcp_handler_panic", "panic", rec)
				if !respLogger.wroteHeader {
					http.Error(respLogger, "Internal server error", http.StatusInternalServerError)
				}
			}
		}()
		s.httpHandler.ServeHTTP(respLogger, r)
	}()

	if !respLogger.wroteHeader {
		logger.Error("mcp_no_response", "method", r.Method)
		http.Error(respLogger, "MCP handler returned without writing response", http.StatusInternalServerError)
	}

	responseBody := logutil.FormatBodyForLog(respLogger.Header().Get("Content-Type"), respLogger.body, mcpDebugBodyLogLimitBytes, respLogger.truncated)
	if respLogger.statusCode >= http.StatusBadRequest {
		logger.Warn("mcp_request_failed", "method", r.Method, "status", respLogger.statusCode, "response", responseBody)
	} else if debug {
		logger.Debug("mcp_response", "status", respLogger.statusCode, "response", responseBody)
	}
}
