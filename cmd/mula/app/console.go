package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/client"
)

// NewConsoleCommand creates the console command.
//
// The console command opens an interactive session against the daemon
// with slash commands for the common operations, so instances can be
// watched and managed without re-invoking the binary.
//
// Usage:
//
//	mula console
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for the interactive console
func NewConsoleCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive daemon console",
		Long: `Open an interactive console session against the mula daemon.

Slash commands drive the daemon:
  /ps               list instances
  /start MODEL      start an instance
  /stop ALIAS       stop an instance
  /logs ALIAS [N]   show the last N log lines (default 50)
  /ready ALIAS      probe instance readiness
  /health           check the daemon
  /help             show this list
  /quit             leave the console

Line history is available with the arrow keys.`,
		Example: `  mula console`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(globalOpts)
		},
	}
}

// consoleSession holds the state of an interactive console session
type consoleSession struct {
	client   *client.Client
	readline *readline.Instance
	output   io.Writer
}

// runConsole executes the console command logic
func runConsole(globalOpts *GlobalOptions) error {
	c := getClient(globalOpts)

	// Fail fast when the daemon is down rather than on the first command.
	if _, err := c.Health(cmdContext()); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     "", // No persistent history file
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	session := &consoleSession{
		client:   c,
		readline: rl,
		output:   rl.Stdout(),
	}

	fmt.Fprintf(session.output, "Connected to %s\n", c.BaseURL())
	fmt.Fprintln(session.output, "Type /help for commands, /quit to leave.")
	fmt.Fprintln(session.output)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue // Ctrl+C clears the line, does not exit
			}
			// io.EOF or other errors - exit
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if !strings.HasPrefix(input, "/") {
			fmt.Fprintf(session.output, "Unknown input %q - commands start with '/', see /help\n", input)
			continue
		}

		if shouldExit := session.handleCommand(input); shouldExit {
			break
		}
	}

	return nil
}

// handleCommand processes one slash command.
// Returns true if the session should exit.
func (s *consoleSession) handleCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	command := parts[0]
	args := parts[1:]

	switch command {
	case "/quit", "/exit":
		fmt.Fprintln(s.output, "Goodbye!")
		return true

	case "/help", "/h", "/?":
		s.showHelp()

	case "/ps":
		s.listInstances()

	case "/start":
		if len(args) < 1 {
			fmt.Fprintln(s.output, "Usage: /start MODEL")
			break
		}
		s.startInstance(args[0])

	case "/stop":
		if len(args) < 1 {
			fmt.Fprintln(s.output, "Usage: /stop ALIAS")
			break
		}
		s.stopInstance(args[0])

	case "/logs":
		if len(args) < 1 {
			fmt.Fprintln(s.output, "Usage: /logs ALIAS [LINES]")
			break
		}
		tail := "50"
		if len(args) > 1 {
			tail = args[1]
		}
		s.showLogs(args[0], tail)

	case "/ready":
		if len(args) < 1 {
			fmt.Fprintln(s.output, "Usage: /ready ALIAS")
			break
		}
		s.checkReady(args[0])

	case "/health":
		s.checkHealth()

	default:
		fmt.Fprintf(s.output, "Unknown command: %s (see /help)\n", command)
	}

	return false
}

func (s *consoleSession) showHelp() {
	fmt.Fprintln(s.output, "Commands:")
	fmt.Fprintln(s.output, "  /ps               list instances")
	fmt.Fprintln(s.output, "  /start MODEL      start an instance")
	fmt.Fprintln(s.output, "  /stop ALIAS       stop an instance")
	fmt.Fprintln(s.output, "  /logs ALIAS [N]   show the last N log lines (default 50)")
	fmt.Fprintln(s.output, "  /ready ALIAS      probe instance readiness")
	fmt.Fprintln(s.output, "  /health           check the daemon")
	fmt.Fprintln(s.output, "  /quit             leave the console")
}

func (s *consoleSession) listInstances() {
	resp, err := s.client.ListInstances(cmdContext())
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}

	if len(resp.Instances) == 0 {
		fmt.Fprintln(s.output, "No instances found")
		return
	}

	w := tabwriter.NewWriter(s.output, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tSTATE\tPORT")
	for _, inst := range resp.Instances {
		port := "-"
		if inst.Port > 0 {
			port = fmt.Sprintf("%d", inst.Port)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", inst.Alias, inst.Model, inst.State, port)
	}
	w.Flush()
}

func (s *consoleSession) startInstance(model string) {
	fmt.Fprintf(s.output, "Starting %s...\n", model)

	resp, err := s.client.StartWithProgress(cmdContext(),
		api.StartRequest{Model: model}, func(msg client.SSEMessage) error {
			if msg.Type == "status" {
				fmt.Fprintf(s.output, "▸ %s\n", msg.Message)
			}
			return nil
		})
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(s.output, "✓ Started %s at %s\n", resp.Alias, resp.Endpoint)
}

func (s *consoleSession) stopInstance(alias string) {
	if err := s.client.Stop(cmdContext(), alias); err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "✓ Stopped %s\n", alias)
}

func (s *consoleSession) showLogs(alias, tail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body, err := s.client.StreamLogs(ctx, alias, false, tail)
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	defer body.Close()

	io.Copy(s.output, body)
}

func (s *consoleSession) checkReady(alias string) {
	resp, err := s.client.CheckReady(cmdContext(), alias)
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}

	if resp.Ready {
		fmt.Fprintf(s.output, "✓ %s is ready (%s)\n", alias, resp.Endpoint)
	} else {
		fmt.Fprintf(s.output, "✗ %s is not ready (state: %s)\n", alias, resp.State)
		if resp.Message != "" {
			fmt.Fprintf(s.output, "  %s\n", resp.Message)
		}
	}
}

func (s *consoleSession) checkHealth() {
	resp, err := s.client.Health(cmdContext())
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "Daemon status: %s\n", resp.Status)
}
