package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/highbeam/agentdeck/internal/config"
	"github.com/highbeam/agentdeck/internal/daemon"
	"github.com/highbeam/agentdeck/internal/ipc"
	"github.com/highbeam/agentdeck/internal/logger"
	"github.com/highbeam/agentdeck/internal/model"
	"github.com/highbeam/agentdeck/internal/notify"
	"github.com/highbeam/agentdeck/internal/report"
	"github.com/highbeam/agentdeck/internal/usage"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentdeck",
		Short: "Track what your coding agents are doing",
		Long:  "agentdeck is a daemon that tails Claude Code and Codex transcripts and answers which sessions are working, which are blocked on you, and what they have done.",
	}

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(resyncCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func startCmd() *cobra.Command {
	var foreground bool
	var pretty bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the agentdeck daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Configure(cfg.LogLevel, pretty)

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err == nil {
				fmt.Println("daemon is already running")
				return nil
			}

			// A stale socket is left over from a prior crash.
			if _, err := os.Stat(cfg.SocketPath); err == nil {
				_ = os.Remove(cfg.SocketPath)
			}

			if !foreground {
				fmt.Println("hint: use --foreground to run in the current terminal")
				fmt.Println("background daemonization not yet implemented, running in foreground")
			}

			notifier := notify.New(cfg.DebounceWindow())
			fetcher := usage.NewCommandFetcher(cfg.UsageCommand)
			roots := []string{cfg.ClaudeProjectsDir, cfg.CodexSessionsDir}

			// The server needs the daemon for stop/resync; the daemon
			// needs the server to listen. Wire the back-reference after
			// construction; the store reference arrives via SetStore.
			server := ipc.NewServer(notifier, fetcher, roots)
			d := daemon.New(cfg, server, notifier)
			server.SetDaemon(d)

			return d.Start()
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in the foreground (don't daemonize)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Human-readable log output")

	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the agentdeck daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := ipc.NewClient(cfg.SocketPath).RequestStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}
			fmt.Println("daemon stopping")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if the daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := ipc.NewClient(cfg.SocketPath).Ping(); err != nil {
				fmt.Println("daemon is not running")
				return err
			}
			fmt.Println("daemon is alive")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := ipc.NewClient(cfg.SocketPath).Status()
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(status))
			} else {
				fmt.Print(report.FormatStatus(status))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func sessionsCmd() *cobra.Command {
	var (
		jsonOutput bool
		status     string
		format     string
		project    string
		attention  bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			filters := map[string]string{}
			if status != "" {
				filters["status"] = status
			}
			if format != "" {
				filters["format"] = format
			}
			if project != "" {
				filters["project"] = project
			}
			if attention {
				filters["attention"] = "true"
			}

			sessions, err := ipc.NewClient(cfg.SocketPath).Sessions(filters)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(sessions))
			} else {
				fmt.Print(report.FormatSessions(sessions))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&status, "status", "", "Filter by work status (working, waiting, permission)")
	cmd.Flags().StringVar(&format, "agent", "", "Filter by agent (claude, codex)")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project path")
	cmd.Flags().BoolVar(&attention, "attention", false, "Only sessions needing a human")
	return cmd
}

func showCmd() *cobra.Command {
	var (
		jsonOutput bool
		messages   bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := ipc.NewClient(cfg.SocketPath)

			sess, err := client.Session(args[0])
			if err != nil {
				return fmt.Errorf("show session: %w", err)
			}

			if messages {
				msgs, err := client.Messages(args[0], limit)
				if err != nil {
					return fmt.Errorf("read messages: %w", err)
				}
				if jsonOutput {
					fmt.Println(report.FormatJSON(msgs))
				} else {
					fmt.Print(report.FormatMessages(msgs))
				}
				return nil
			}

			if jsonOutput {
				fmt.Println(report.FormatJSON(sess))
			} else {
				fmt.Print(report.FormatSession(sess))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&messages, "messages", false, "Show the conversation instead of the summary")
	cmd.Flags().IntVar(&limit, "limit", 0, "Only the last N messages")
	return cmd
}

func projectsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Aggregate sessions by project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ov, err := ipc.NewClient(cfg.SocketPath).Projects()
			if err != nil {
				return fmt.Errorf("project overview: %w", err)
			}
			if jsonOutput {
				fmt.Println(report.FormatJSON(ov))
			} else {
				fmt.Print(report.FormatProjects(*ov))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show account usage limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			snap, err := ipc.NewClient(cfg.SocketPath).Usage()
			if err != nil {
				return fmt.Errorf("fetch usage: %w", err)
			}
			fmt.Println(report.FormatJSON(snap))
			return nil
		},
	}
}

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <session-id>",
		Short: "Rebuild a session from its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := ipc.NewClient(cfg.SocketPath).Resync(args[0]); err != nil {
				return fmt.Errorf("resync: %w", err)
			}
			fmt.Println("resynced")
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream session changes as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := ipc.NewClient(cfg.SocketPath)
			return client.Subscribe(func(change ipc.ChangeData) bool {
				if change.SessionID == "" {
					fmt.Println("sessions changed")
					return true
				}
				sess, err := client.Session(change.SessionID)
				if err != nil {
					fmt.Printf("%s changed\n", change.SessionID)
					return true
				}
				fmt.Print(report.FormatSessions([]model.Session{*sess}))
				return true
			})
		},
	}
}
