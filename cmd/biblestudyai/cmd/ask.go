package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AssetOverflow/BibleStudyAI/internal/search"
	"github.com/AssetOverflow/BibleStudyAI/internal/session"
)

// newAskCmd creates the ask command for one-shot questions.
func newAskCmd() *cobra.Command {
	var sessionID string
	var labelFilter string
	var topK int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the corpus",
		Long: `Run one question through hybrid retrieval and answer synthesis,
printing the grounded answer with its citations.

Pass --session to continue an earlier conversation; the session id is
printed with every answer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runAsk(cmd, query, sessionID, labelFilter, topK)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue a conversation")
	cmd.Flags().StringVar(&labelFilter, "label", "", "Restrict vector retrieval to chunks with this label")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Evidence passages to retrieve (default: configured max_results)")

	return cmd
}

func runAsk(cmd *cobra.Command, query, sessionID, labelFilter string, topK int) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	sid, created, err := a.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	if sessionID != "" && created {
		fmt.Fprintf(out, "(session %s expired, starting a new one)\n", sessionID)
	}

	history, err := a.sessions.ContextWindow(ctx, sid)
	if err != nil {
		return err
	}

	result, err := a.pipeline.Retrieve(ctx, &search.Request{
		Query:       query,
		TopK:        topK,
		LabelFilter: labelFilter,
	})
	if err != nil {
		return err
	}

	ans, err := a.synth.Synthesize(ctx, query, result.Results, history, result.Degraded)
	if err != nil {
		return err
	}

	if _, err := a.sessions.Append(ctx, sid, session.RoleUser, query); err != nil {
		return err
	}
	if _, err := a.sessions.Append(ctx, sid, session.RoleAssistant, ans.Text); err != nil {
		return err
	}

	fmt.Fprintln(out, ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Fprintln(out)
		for i, c := range ans.Citations {
			fmt.Fprintf(out, "[%d] %s\n", i+1, c.Reference)
		}
	}
	fmt.Fprintln(out)
	if result.Degraded {
		origins := make([]string, len(result.FailedOrigins))
		for i, o := range result.FailedOrigins {
			origins[i] = string(o)
		}
		fmt.Fprintf(out, "note: degraded retrieval (%s unavailable)\n", strings.Join(origins, ", "))
	}
	fmt.Fprintf(out, "confidence: %.2f  session: %s\n", ans.Confidence, sid)

	return nil
}
