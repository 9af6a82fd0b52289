package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comigor/mentor-go/internal/agent"
	"github.com/comigor/mentor-go/internal/history"
)

const (
	separator      = 80
	historyPreview = 100
)

// Labels printed by the demo, in the language of the scripted conversation.
const (
	labelQuestion   = "🔵 Pergunta"
	labelUser       = "👤 Usuário"
	labelMentor     = "🤖 GeoAI Mentor"
	labelTranscript = "📝 HISTÓRICO DA CONVERSA:"
)

type demoOptions struct {
	Session string
}

func newDemoCmd(a *app) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Send the scripted questions on one session and print the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := a.newAgent()
			if err != nil {
				return err
			}
			defer ag.Store().Close()

			session := firstNonEmpty(opts.Session, a.cfg.Mentor.DemoSession)
			return runDemo(cmd.Context(), cmd.OutOrStdout(), ag, session, a.cfg.Mentor.DemoQuestions)
		},
	}
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: mentor.demo_session)")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, ag *agent.Agent, session string, questions []string) error {
	for _, q := range questions {
		fmt.Fprintf(out, "\n%s: %s\n", labelQuestion, q)
		reply, err := ag.Ask(ctx, session, q)
		if err != nil {
			return fmt.Errorf("ask %q: %w", q, err)
		}
		fmt.Fprintf(out, "\n%s: %s\n", labelMentor, reply)
		fmt.Fprintln(out, strings.Repeat("-", separator))
	}

	turns, err := ag.Store().GetOrCreate(session).Turns()
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	printHistory(out, turns)
	return nil
}

func printHistory(out io.Writer, turns []history.Turn) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", separator))
	fmt.Fprintln(out, labelTranscript)
	fmt.Fprintln(out, strings.Repeat("=", separator))
	for _, t := range turns {
		fmt.Fprintf(out, "\n%s: %s...\n", speaker(t.Role), preview(t.Content, historyPreview))
	}
	fmt.Fprintln(out, strings.Repeat("=", separator))
}

func speaker(r history.Role) string {
	if r == history.RoleUser {
		return labelUser
	}
	return labelMentor
}

// preview cuts s to at most n runes.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
