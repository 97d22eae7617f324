package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AssetOverflow/BibleStudyAI/internal/answer"
	"github.com/AssetOverflow/BibleStudyAI/internal/search"
	"github.com/AssetOverflow/BibleStudyAI/internal/session"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// Registry receives the server's Prometheus metrics. If nil a private
	// registry is created, which keeps tests hermetic.
	Registry *prometheus.Registry
}

// retriever runs the hybrid retrieval phase. *search.Pipeline satisfies it;
// tests inject a fake.
type retriever interface {
	Retrieve(ctx context.Context, req *search.Request) (*search.Result, error)
}

// synthesizer turns fused evidence into a grounded answer.
// *answer.Synthesizer satisfies it.
type synthesizer interface {
	Synthesize(ctx context.Context, query string, results []*search.FusedResult, history []*session.Message, degraded bool) (*answer.Answer, error)
	CitationDrops() int64
}

// sessions is the conversation-state surface the handlers need.
// *session.Manager satisfies it.
type sessions interface {
	GetOrCreate(ctx context.Context, id string) (string, bool, error)
	Append(ctx context.Context, sessionID string, role session.Role, content string) (*session.Message, error)
	ContextWindow(ctx context.Context, sessionID string) ([]*session.Message, error)
	History(ctx context.Context, sessionID string) ([]*session.Message, error)
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Query is the natural-language question.
	Query string `json:"query"`
	// SessionID continues an existing conversation when set.
	SessionID string `json:"session_id,omitempty"`
	// LabelFilter restricts vector retrieval to labeled chunks.
	LabelFilter string `json:"label_filter,omitempty"`
	// TopK bounds the evidence set. Zero means the configured default.
	TopK int `json:"top_k,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	Answer     string            `json:"answer"`
	Citations  []answer.Citation `json:"citations"`
	Confidence float64           `json:"confidence"`
	// SessionID is the conversation id for follow-up questions. It differs
	// from the request's id when that session was expired or unknown.
	SessionID string `json:"session_id"`
	// SessionCreated is true when SessionID identifies a fresh session.
	SessionCreated bool `json:"session_created"`
	// Degraded is true when one or two retrieval origins were unavailable.
	Degraded bool `json:"degraded"`
	// FailedOrigins lists the unavailable origins when Degraded is true.
	FailedOrigins []search.Origin `json:"failed_origins,omitempty"`
}

// historyMessage is one entry of GET /api/sessions/{id}/messages.
type historyMessage struct {
	Role      session.Role `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// historyResponse is the JSON response for GET /api/sessions/{id}/messages.
type historyResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []historyMessage `json:"messages"`
}

// passage is included in synthesis-failure responses so callers can show
// the retrieved text even though no answer was generated.
type passage struct {
	ChunkID   string `json:"chunk_id"`
	Reference string `json:"reference"`
	Excerpt   string `json:"excerpt"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Passages carries the retrieved evidence when retrieval succeeded but
	// synthesis failed, so the caller can fall back to raw passages.
	Passages []passage `json:"passages,omitempty"`
}
