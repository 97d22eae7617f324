package answer

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/llm"
	"github.com/AssetOverflow/BibleStudyAI/internal/search"
	"github.com/AssetOverflow/BibleStudyAI/internal/session"
)

// Citation points an answer claim back at a retrieved chunk.
type Citation struct {
	ChunkID   string `json:"chunk_id"`
	Reference string `json:"reference"`
	Excerpt   string `json:"excerpt"`
}

// Answer is the structured synthesis output.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`

	// Grounded is false when the answer is the canned insufficient-
	// evidence response rather than model output.
	Grounded bool `json:"grounded"`
}

// degradedPenalty scales confidence down when retrieval ran without all
// three origins.
const degradedPenalty = 0.7

// citationPattern matches the [n] markers the system prompt demands.
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Synthesizer turns fused evidence plus conversation context into a
// grounded answer. Every citation the model claims is checked against the
// evidence set; claims of passages that were never provided are dropped.
type Synthesizer struct {
	client           llm.Client
	timeout          time.Duration
	maxContextTokens int
	logger           *slog.Logger

	// citationDrops counts integrity violations for quality monitoring.
	citationDrops atomic.Int64
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithMaxContextTokens caps the estimated token footprint of the prompt.
// The oldest conversation turns are dropped first; evidence and the
// system prompt are always kept. 0 disables the cap.
func WithMaxContextTokens(n int) SynthesizerOption {
	return func(s *Synthesizer) {
		s.maxContextTokens = n
	}
}

// NewSynthesizer creates a synthesizer over the given model client. The
// timeout bounds each model call independently of retrieval.
func NewSynthesizer(client llm.Client, timeout time.Duration, logger *slog.Logger, opts ...SynthesizerOption) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{client: client, timeout: timeout, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CitationDrops returns the number of fabricated citations dropped since
// startup.
func (s *Synthesizer) CitationDrops() int64 {
	return s.citationDrops.Load()
}

// Synthesize produces an answer for the query grounded in the fused
// results. With no evidence the model is never called: presenting its
// training data as cited scripture is exactly the failure this layer
// exists to prevent.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	query string,
	results []*search.FusedResult,
	history []*session.Message,
	degraded bool,
) (*Answer, error) {
	if len(results) == 0 {
		return &Answer{
			Text:       insufficientEvidenceText,
			Citations:  []Citation{},
			Confidence: 0,
			Grounded:   false,
		}, nil
	}

	messages := s.buildMessages(query, results, history)

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.client.Chat(cctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Retrieval succeeded; only synthesis timed out. Callers can
			// fall back to showing raw passages.
			return nil, apperrors.SynthesisTimeout(err)
		}
		return nil, err
	}

	text, citations := s.checkCitations(reply, results)

	return &Answer{
		Text:       text,
		Citations:  citations,
		Confidence: confidence(results, degraded),
		Grounded:   true,
	}, nil
}

// buildMessages assembles the chat transcript: system prompt, then the
// conversation window, then the evidence and question. Under a token cap
// the window is trimmed oldest-first to whatever fits after the system
// prompt and evidence are accounted for.
func (s *Synthesizer) buildMessages(query string, results []*search.FusedResult, history []*session.Message) []llm.Message {
	userPrompt := buildUserPrompt(query, results)
	if s.maxContextTokens > 0 {
		budget := s.maxContextTokens - approxTokens(systemPrompt) - approxTokens(userPrompt)
		history = trimToBudget(history, budget)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, m := range history {
		role := llm.RoleUser
		if m.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		} else if m.Role == session.RoleSystem {
			role = llm.RoleSystem
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userPrompt})
	return messages
}

// approxTokens estimates a message's token footprint with the rough
// four-bytes-per-token heuristic for English text.
func approxTokens(content string) int {
	return len(content)/4 + 4
}

// trimToBudget keeps the newest messages that fit the token budget,
// preserving their order.
func trimToBudget(history []*session.Message, budget int) []*session.Message {
	cut := len(history)
	for cut > 0 {
		next := approxTokens(history[cut-1].Content)
		if next > budget {
			break
		}
		budget -= next
		cut--
	}
	return history[cut:]
}

// checkCitations extracts [n] markers from the reply, resolves valid ones
// against the evidence set in order of first appearance, and strips markers
// that name passages the model was never given.
func (s *Synthesizer) checkCitations(reply string, results []*search.FusedResult) (string, []Citation) {
	seen := make(map[int]bool, len(results))
	var citations []Citation

	text := citationPattern.ReplaceAllStringFunc(reply, func(marker string) string {
		n, err := strconv.Atoi(marker[1 : len(marker)-1])
		if err != nil || n < 1 || n > len(results) {
			s.citationDrops.Add(1)
			s.logger.Warn("dropping fabricated citation",
				slog.String("marker", marker),
				slog.Int("evidence_count", len(results)))
			return ""
		}
		if !seen[n] {
			seen[n] = true
			r := results[n-1]
			citations = append(citations, Citation{
				ChunkID:   r.ChunkID,
				Reference: r.Reference,
				Excerpt:   excerpt(r.Content),
			})
		}
		return marker
	})

	if citations == nil {
		citations = []Citation{}
	}
	return text, citations
}

// confidence derives a 0-1 score from the evidence strength, discounted
// when retrieval was degraded.
func confidence(results []*search.FusedResult, degraded bool) float64 {
	var sum float64
	for _, r := range results {
		sum += r.Combined
	}
	c := sum / float64(len(results))
	if degraded {
		c *= degradedPenalty
	}
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
