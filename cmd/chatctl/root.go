package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/crawlshastra-backend/internal/clients/assistant"
	"github.com/yungbote/crawlshastra-backend/internal/clients/threads"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
	"github.com/yungbote/crawlshastra-backend/internal/session"
)

type globalFlags struct {
	configPath   string
	serverURL    string
	assistantURL string
	token        string
	askTimeout   time.Duration
	verbose      bool
}

// runtime is what every chat command needs: resolved config and a
// controller bound to the configured servers.
type runtime struct {
	log *logger.Logger
	cfg fileConfig
	ctl *session.Controller
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Talk to the CrawlShastra assistant from a terminal",
		Long: `chatctl keeps a chat session against the thread service and the
assistant gateway. Threads are loaded from the server on every invocation.

Settings come from ~/.chatctl.yaml, then CHATCTL_TOKEN, then flags.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", defaultConfigPath(), "config file")
	pf.StringVar(&flags.serverURL, "server", "", "thread service base url")
	pf.StringVar(&flags.assistantURL, "assistant", "", "assistant gateway base url")
	pf.StringVar(&flags.token, "token", "", "bearer token")
	pf.DurationVar(&flags.askTimeout, "ask-timeout", 0, "assistant call timeout")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newListCmd(flags),
		newShowCmd(flags),
		newNewCmd(flags),
		newSendCmd(flags),
		newDeleteCmd(flags),
		newChatCmd(flags),
		newTokenCmd(flags),
	)
	return root
}

func (f *globalFlags) logger() (*logger.Logger, error) {
	mode := "test"
	if f.verbose {
		mode = "development"
	}
	return logger.New(mode)
}

func (f *globalFlags) open() (*runtime, error) {
	log, err := f.logger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.applyOverrides(f)
	if cfg.Token == "" {
		return nil, fmt.Errorf("no token configured; run `chatctl token --save` or pass --token")
	}

	store, err := threads.NewClient(log, threads.Config{
		BaseURL:    cfg.ServerURL,
		Token:      cfg.Token,
		MaxRetries: cfg.Retries,
	})
	if err != nil {
		return nil, err
	}
	gw, err := assistant.NewClient(log, assistant.Config{
		BaseURL:    cfg.AssistantURL,
		Timeout:    cfg.AskTimeout,
		MaxRetries: cfg.Retries,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{
		log: log,
		cfg: cfg,
		ctl: session.New(log, store, gw, session.Config{AskTimeout: cfg.AskTimeout}),
	}, nil
}
