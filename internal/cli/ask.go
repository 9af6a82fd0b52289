package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type askOptions struct {
	Session string
}

func newAskCmd(a *app) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [query...]",
		Short: "Ask a single question (reads stdin when no args are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ag, err := a.newAgent()
			if err != nil {
				return err
			}
			defer ag.Store().Close()

			session := firstNonEmpty(opts.Session, uuid.Must(uuid.NewV7()).String())
			reply, err := ag.Ask(cmd.Context(), session, query)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: random)")
	return cmd
}

func readQuery(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	query := strings.TrimSpace(string(data))
	if query == "" {
		return "", errors.New("query is required")
	}
	return query, nil
}
