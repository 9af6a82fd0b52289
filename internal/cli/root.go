package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/comigor/mentor-go/internal/agent"
	"github.com/comigor/mentor-go/internal/config"
	"github.com/comigor/mentor-go/internal/history"
	"github.com/comigor/mentor-go/internal/llm"
	"github.com/comigor/mentor-go/internal/logger"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type rootOptions struct {
	Config string
}

// app is shared by every subcommand; PersistentPreRunE fills cfg.
type app struct {
	v   *viper.Viper
	cfg *config.Config

	newClient func(config.LLMConfig) llm.Client
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{
		v: viper.New(),
		newClient: func(cfg config.LLMConfig) llm.Client {
			return llm.NewClient(cfg)
		},
	})
}

func newRootCmd(a *app) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "mentor",
		Short:         "mentor - GeoAI Mentor chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(opts.Config)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.Config, "config", "", "config file (default: ./config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("model", "", "override model name")
	flags.Float32("temperature", 0, "override sampling temperature [0,1]")
	flags.String("history-backend", "", "session history backend: memory or sqlite")

	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("llm.model", flags.Lookup("model"))
	_ = a.v.BindPFlag("llm.temperature", flags.Lookup("temperature"))
	_ = a.v.BindPFlag("history.backend", flags.Lookup("history-backend"))

	root.AddCommand(newDemoCmd(a))
	root.AddCommand(newAskCmd(a))
	root.AddCommand(newChatCmd(a))
	root.AddCommand(newModelsCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) init(configFile string) error {
	if err := config.Init(a.v, configFile); err != nil {
		return err
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	return nil
}

// newAgent wires store, client and agent from the loaded configuration.
func (a *app) newAgent() (*agent.Agent, error) {
	if err := a.cfg.LLM.RequireAPIKey(); err != nil {
		return nil, err
	}
	backend, err := history.NewBackend(a.cfg.History.Backend)
	if err != nil {
		return nil, err
	}
	store := history.NewStore(backend)
	logger.L.Debug("agent ready", "model", a.cfg.LLM.Model, "backend", a.cfg.History.Backend)
	return agent.New(a.newClient(a.cfg.LLM), store, *a.cfg), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}
