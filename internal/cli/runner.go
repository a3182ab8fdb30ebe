// Package cli implements ankrctl, the operator CLI that talks to a running
// ankrmcpd over its REST API.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"OpenMCP-Ankr/sdk/go/ankrmcp"
)

// 退出码。
const (
	ExitOK          = 0
	ExitInternal    = 1
	ExitUsage       = 2
	ExitAPI         = 3
	ExitUnavailable = 4
)

// 环境变量名。
const (
	EnvServer = "ANKRMCP_SERVER"
	EnvToken  = "ANKRMCP_TOKEN"
)

const defaultServer = "http://127.0.0.1:8080"

// Runner 执行一次命令行调用。
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	// newClient 可在测试中替换。
	newClient func(server string, timeout time.Duration) (*ankrmcp.Client, error)
}

// NewRunner 使用标准输出创建 Runner。
func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

// NewRunnerWithWriters 使用给定输出创建 Runner。
func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		getenv: os.Getenv,
		newClient: func(server string, timeout time.Duration) (*ankrmcp.Client, error) {
			return ankrmcp.NewClient(server, &http.Client{Timeout: timeout})
		},
	}
}

type globalFlags struct {
	server  string
	token   string
	timeout time.Duration
	output  string
}

type state struct {
	runner *Runner
	flags  globalFlags
	client *ankrmcp.Client
}

// usageError 标记参数错误。
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Run 执行命令并返回进程退出码。
func (r *Runner) Run(args []string) int {
	s := &state{runner: r}
	root := s.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(r.stderr, "error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var apiErr *ankrmcp.APIError
	var usage usageError
	switch {
	case errors.As(err, &apiErr):
		return ExitAPI
	case errors.As(err, &usage):
		return ExitUsage
	case strings.Contains(err.Error(), "perform request"):
		return ExitUnavailable
	case strings.HasPrefix(err.Error(), "unknown command"), strings.HasPrefix(err.Error(), "unknown flag"),
		strings.Contains(err.Error(), "accepts"), strings.Contains(err.Error(), "requires at least"):
		return ExitUsage
	default:
		return ExitInternal
	}
}

func (s *state) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ankrctl",
		Short: "Operate an ankrmcpd daemon: list actions and chains, invoke actions, manage tasks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			if s.flags.output != "json" && s.flags.output != "text" {
				return usageError{fmt.Errorf("--output must be json or text, got %q", s.flags.output)}
			}
			server := s.flags.server
			if server == "" {
				server = s.runner.getenv(EnvServer)
			}
			if server == "" {
				server = defaultServer
			}
			client, err := s.runner.newClient(server, s.flags.timeout)
			if err != nil {
				return usageError{err}
			}
			token := s.flags.token
			if token == "" {
				token = s.runner.getenv(EnvToken)
			}
			client.SetAccessToken(token)
			s.client = client
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&s.flags.server, "server", "", "ankrmcpd base URL (default $"+EnvServer+" or "+defaultServer+")")
	cmd.PersistentFlags().StringVar(&s.flags.token, "token", "", "Bearer token (default $"+EnvToken+")")
	cmd.PersistentFlags().DurationVar(&s.flags.timeout, "timeout", ankrmcp.DefaultHTTPTimeout, "HTTP timeout")
	cmd.PersistentFlags().StringVarP(&s.flags.output, "output", "o", "json", "Output format: json or text")

	cmd.AddCommand(s.newHealthCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newInvokeCommand())
	cmd.AddCommand(s.newTasksCommand())
	cmd.AddCommand(s.newHistoryCommand())
	return cmd
}

func (s *state) newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := s.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			return s.render(health, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d actions, %d chains, tasks=%t\n", health.Status, health.Actions, health.Chains, health.Tasks)
			})
		},
	}
}

func (s *state) newActionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the action catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := s.client.Actions(cmd.Context())
			if err != nil {
				return err
			}
			return s.render(actions, func(w io.Writer) {
				for _, a := range actions {
					fmt.Fprintf(w, "%s\t%s\n", a.Name, a.Description)
				}
			})
		},
	}
}

func (s *state) newChainsCommand() *cobra.Command {
	var network string
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "List supported blockchains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			network = strings.ToLower(strings.TrimSpace(network))
			if network != "" && network != "mainnet" && network != "testnet" {
				return usageError{fmt.Errorf("--network must be mainnet or testnet, got %q", network)}
			}
			chains, err := s.client.Chains(cmd.Context(), network)
			if err != nil {
				return err
			}
			return s.render(chains, func(w io.Writer) {
				for _, c := range chains {
					fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Network)
				}
			})
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "Filter by network: mainnet or testnet")
	return cmd
}

func (s *state) newInvokeCommand() *cobra.Command {
	var msg ankrmcp.Message
	cmd := &cobra.Command{
		Use:   "invoke <action> <message...>",
		Short: "Invoke an action synchronously with a natural-language message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg.Text = strings.Join(args[1:], " ")
			result, err := s.client.Invoke(cmd.Context(), args[0], msg)
			if result.Text != "" {
				if renderErr := s.render(result, func(w io.Writer) { fmt.Fprintln(w, result.Text) }); renderErr != nil {
					return renderErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&msg.RoomID, "room", "", "Conversation room id")
	cmd.Flags().StringVar(&msg.UserID, "user", "", "User id")
	return cmd
}

func (s *state) newTasksCommand() *cobra.Command {
	root := &cobra.Command{Use: "tasks", Short: "Submit and inspect asynchronous invocations"}

	var submission ankrmcp.TaskSubmission
	var wait bool
	var pollInterval time.Duration
	submitCmd := &cobra.Command{
		Use:   "submit <action> <message...>",
		Short: "Queue an action invocation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			submission.Action = args[0]
			submission.Input = strings.Join(args[1:], " ")
			task, err := s.client.SubmitTask(cmd.Context(), submission)
			if err != nil {
				return err
			}
			if wait {
				ctx, cancel := context.WithTimeout(cmd.Context(), s.flags.timeout)
				defer cancel()
				task, err = s.client.WaitForTask(ctx, task.ID, pollInterval)
				if err != nil {
					return err
				}
			}
			return s.renderTask(task)
		},
	}
	submitCmd.Flags().StringVar(&submission.ID, "id", "", "Idempotency id for the task")
	submitCmd.Flags().StringVar(&submission.RoomID, "room", "", "Conversation room id")
	submitCmd.Flags().StringVar(&submission.UserID, "user", "", "User id")
	submitCmd.Flags().BoolVar(&wait, "wait", false, "Wait until the task finishes")
	submitCmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "Polling interval used with --wait")
	root.AddCommand(submitCmd)

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := s.client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.renderTask(task)
		},
	}
	root.AddCommand(getCmd)

	var query ankrmcp.TaskQuery
	var statuses string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query.Statuses = splitCSV(statuses)
			list, err := s.client.ListTasks(cmd.Context(), query)
			if err != nil {
				return err
			}
			return s.render(list, func(w io.Writer) {
				for _, t := range list.Tasks {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n", t.ID, t.Action, t.Status, t.Attempts, t.MaxRetries)
				}
				fmt.Fprintf(w, "total=%d pending=%d retrying=%d running=%d succeeded=%d failed=%d\n",
					list.Stats.Total, list.Stats.Pending, list.Stats.Retrying, list.Stats.Running, list.Stats.Succeeded, list.Stats.Failed)
				names := make([]string, 0, len(list.Stats.ByAction))
				for name := range list.Stats.ByAction {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					a := list.Stats.ByAction[name]
					fmt.Fprintf(w, "  %s\t%d\tok=%d\tfailed=%d\n", name, a.Total, a.Succeeded, a.Failed)
				}
			})
		},
	}
	listCmd.Flags().StringVar(&statuses, "status", "", "Comma separated statuses")
	listCmd.Flags().StringVar(&query.Action, "action", "", "Filter by action name")
	listCmd.Flags().StringVar(&query.RoomID, "room", "", "Filter by room id")
	listCmd.Flags().StringVar(&query.UserID, "user", "", "Filter by user id")
	listCmd.Flags().StringVar(&query.ErrorCode, "error-code", "", "Filter by last error code, e.g. API_ERROR")
	listCmd.Flags().StringVar(&query.Query, "query", "", "Search action, input and result text")
	listCmd.Flags().IntVar(&query.Limit, "limit", 20, "Page size")
	listCmd.Flags().IntVar(&query.Offset, "offset", 0, "Page offset")
	listCmd.Flags().BoolVar(&query.Ascending, "asc", false, "Oldest first")
	root.AddCommand(listCmd)
	return root
}

func (s *state) newHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := s.client.Invocations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return s.render(records, func(w io.Writer) {
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Action, r.Outcome, r.LastStage)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of records")
	return cmd
}

func (s *state) renderTask(task ankrmcp.Task) error {
	return s.render(task, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", task.ID, task.Action, task.Status)
		switch {
		case task.Result != nil && task.Result.Text != "":
			fmt.Fprintln(w, task.Result.Text)
		case task.LastError != "":
			fmt.Fprintln(w, task.LastError)
		}
	})
}

// render 按 --output 输出 JSON 或文本。
func (s *state) render(data any, text func(io.Writer)) error {
	w := s.runner.stdout
	if s.flags.output == "text" {
		text(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
