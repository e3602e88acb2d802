package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/crawlshastra-backend/internal/services"
	"github.com/yungbote/crawlshastra-backend/internal/session"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List threads, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open()
			if err != nil {
				return err
			}
			if err := rt.ctl.Load(cmd.Context()); err != nil {
				return err
			}
			printThreads(cmd.OutOrStdout(), rt.ctl.Threads(), rt.ctl.Active().ID)
			return nil
		},
	}
}

func newShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print a thread's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open()
			if err != nil {
				return err
			}
			if err := rt.ctl.Load(cmd.Context()); err != nil {
				return err
			}
			th, ok := rt.ctl.Thread(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], session.ErrThreadNotFound)
			}
			printThread(cmd.OutOrStdout(), th)
			return nil
		},
	}
}

func newNewCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open()
			if err != nil {
				return err
			}
			th, err := rt.ctl.NewThread(cmd.Context())
			if err != nil {
				return fmt.Errorf("thread not stored: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), th.ID)
			return nil
		},
	}
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var threadID string
	var fresh bool
	cmd := &cobra.Command{
		Use:   "send <message>...",
		Short: "Send one message and print the reply",
		Long: `Sends a message to a thread and prints the assistant's reply.
Without --thread the most recently updated thread is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := rt.ctl.Load(ctx); err != nil {
				return err
			}
			id, err := pickThread(ctx, rt.ctl, threadID, fresh)
			if err != nil {
				return err
			}
			th, err := rt.ctl.Send(ctx, id, strings.Join(args, " "))
			if th.ID != "" {
				printReply(cmd.OutOrStdout(), th)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread id")
	cmd.Flags().BoolVar(&fresh, "new", false, "send to a new thread")
	return cmd
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := rt.ctl.Load(ctx); err != nil {
				return err
			}
			if err := rt.ctl.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newChatCmd(flags *globalFlags) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session",
		Long: `Reads messages from stdin, one per line. Lines starting with "/" are
commands: /new, /list, /use <id>, /delete, /quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := flags.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := rt.ctl.Load(ctx); err != nil {
				return err
			}
			if threadID != "" {
				if err := rt.ctl.Select(threadID); err != nil {
					return err
				}
			}
			return runChat(ctx, rt.ctl, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread to resume")
	return cmd
}

func newTokenCmd(flags *globalFlags) *cobra.Command {
	var userID, secret string
	var ttl time.Duration
	var save bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development token",
		Long: `Signs a token for --user with the server's JWT_SECRET_KEY. With --save
the token is written to the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := flags.logger()
			if err != nil {
				return err
			}
			principal := uuid.New()
			if userID != "" {
				if principal, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("--user: %w", err)
				}
			}
			if secret == "" {
				return errors.New("--secret is required")
			}
			tok, err := services.NewAuthService(log, secret).IssueToken(principal, ttl)
			if err != nil {
				return err
			}
			if save {
				cfg, err := loadConfig(flags.configPath)
				if err != nil {
					return err
				}
				cfg.Token = tok
				if err := saveConfig(flags.configPath, cfg); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "principal id (random when empty)")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the config file")
	return cmd
}

// pickThread resolves the thread a one-shot send goes to. A new thread that
// could not be stored is still used; the send creates it.
func pickThread(ctx context.Context, ctl *session.Controller, id string, fresh bool) (string, error) {
	switch {
	case fresh:
		th, err := ctl.NewThread(ctx)
		if err != nil && th.ID == "" {
			return "", err
		}
		return th.ID, nil
	case id != "":
		if err := ctl.Select(id); err != nil {
			return "", fmt.Errorf("%s: %w", id, err)
		}
		return id, nil
	default:
		return ctl.Active().ID, nil
	}
}

func runChat(ctx context.Context, ctl *session.Controller, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintf(out, "thread %s\n> ", ctl.Active().ID)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := chatCommand(ctx, ctl, line, out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			fmt.Fprint(out, "> ")
			continue
		}
		th, err := ctl.Send(ctx, ctl.Active().ID, line)
		if th.ID != "" {
			printReply(out, th)
		}
		if err != nil {
			fmt.Fprintf(out, "warning: %v\n", err)
		}
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}

func chatCommand(ctx context.Context, ctl *session.Controller, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		th, err := ctl.NewThread(ctx)
		fmt.Fprintf(out, "thread %s\n", th.ID)
		return false, err
	case "/list":
		printThreads(out, ctl.Threads(), ctl.Active().ID)
		return false, nil
	case "/use":
		if len(fields) != 2 {
			return false, errors.New("usage: /use <thread-id>")
		}
		if err := ctl.Select(fields[1]); err != nil {
			return false, err
		}
		printThread(out, ctl.Active())
		return false, nil
	case "/delete":
		err := ctl.Delete(ctx, ctl.Active().ID)
		fmt.Fprintf(out, "thread %s\n", ctl.Active().ID)
		return false, err
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}
