package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comigor/mentor-go/internal/llm"
)

type modelLister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

type modelsOptions struct {
	All bool
}

func newModelsCmd(a *app) *cobra.Command {
	opts := &modelsOptions{}
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available generative models",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.LLM.RequireAPIKey(); err != nil {
				return err
			}
			lister, err := llm.NewModelLister(llm.ModelListerConfig{
				BaseURL: a.cfg.LLM.ModelsURL,
				APIKey:  a.cfg.LLM.APIKey,
			})
			if err != nil {
				return err
			}
			return runModels(cmd.Context(), cmd.OutOrStdout(), lister, opts.All)
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "include models without generateContent support")
	return cmd
}

func runModels(ctx context.Context, out io.Writer, lister modelLister, all bool) error {
	models, err := lister.ListModels(ctx)
	if err != nil {
		return err
	}
	if !all {
		models = llm.FilterByMethod(models, llm.MethodGenerateContent)
	}

	fmt.Fprintln(out, "Modelos disponíveis:")
	fmt.Fprintln(out)
	for _, m := range models {
		fmt.Fprintf(out, "Nome: %s\n", m.Name)
		fmt.Fprintf(out, "Display Name: %s\n", m.DisplayName)
		fmt.Fprintf(out, "Métodos suportados: [%s]\n", strings.Join(m.SupportedGenerationMethods, ", "))
		fmt.Fprintln(out, strings.Repeat("-", separator))
	}
	return nil
}
