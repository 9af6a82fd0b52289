package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/comigor/mentor-go/internal/agent"
	"github.com/comigor/mentor-go/internal/pipeline"
)

type chatOptions struct {
	Session string
}

func newChatCmd(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation on one session (/history, /exit)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := a.newAgent()
			if err != nil {
				return err
			}
			defer ag.Store().Close()

			session := firstNonEmpty(opts.Session, uuid.Must(uuid.NewV7()).String())
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), ag, session)
		},
	}
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: random)")
	return cmd
}

// runChat answers one line at a time until EOF or /exit. Service failures
// are reported and the loop continues; the failed line leaves no trace.
func runChat(ctx context.Context, in io.Reader, out io.Writer, ag *agent.Agent, session string) error {
	fmt.Fprintf(out, "session %s\n", session)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/history":
			turns, err := ag.Store().GetOrCreate(session).Turns()
			if err != nil {
				return err
			}
			printHistory(out, turns)
			continue
		}

		reply, err := ag.Ask(ctx, session, line)
		switch {
		case errors.Is(err, pipeline.ErrServiceUnavailable), errors.Is(err, pipeline.ErrInvalidResponse):
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		case err != nil:
			return err
		}
		fmt.Fprintf(out, "%s\n", reply)
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
