// Headless CLI client for stratum-agent workflows.
//
// Drives a running worker over Temporal without the interactive TUI:
// start/send/interrupt/end map onto workflow Updates, history onto a query,
// and list/archive/replay operate on the local rollout journals.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/stratumhq/stratum-agent/internal/models"
	"github.com/stratumhq/stratum-agent/internal/rollout"
	"github.com/stratumhq/stratum-agent/internal/temporalclient"
	"github.com/stratumhq/stratum-agent/internal/version"
	"github.com/stratumhq/stratum-agent/internal/workflow"
)

const defaultTaskQueue = "stratum-agent"

const updateTimeout = 30 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "client",
		Short:         "Headless client for stratum-agent workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("temporal-host", "", "Temporal server address (overrides envconfig)")
	root.PersistentFlags().String("agent-home", "", "Agent state directory (default: $AGENT_HOME or ~/.stratum)")

	root.AddCommand(
		newStartCmd(),
		newSendCmd(),
		newHistoryCmd(),
		newInterruptCmd(),
		newEndCmd(),
		newUndoCmd(),
		newListCmd(),
		newArchiveCmd(),
		newReplayCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the client version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.GitCommit)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dialTemporal(cmd *cobra.Command) (client.Client, error) {
	host, _ := cmd.Flags().GetString("temporal-host")
	opts, err := temporalclient.LoadClientOptions(host, "")
	if err != nil {
		return nil, fmt.Errorf("load Temporal client config: %w", err)
	}
	c, err := client.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to Temporal: %w", err)
	}
	return c, nil
}

func agentHome(cmd *cobra.Command) string {
	home, _ := cmd.Flags().GetString("agent-home")
	if home != "" {
		return home
	}
	return rollout.DefaultAgentHome()
}

func newStartCmd() *cobra.Command {
	var message, model, provider, approvalMode string
	var enableShell, enableReadFile, enableUnifiedExec bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new agentic workflow and print its ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("--message is required")
			}
			c, err := dialTemporal(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			workflowID := fmt.Sprintf("turn-%s", uuid.New().String()[:8])
			cwd, _ := os.Getwd()

			input := workflow.WorkflowInput{
				ConversationID: workflowID,
				UserMessage:    message,
				Config: models.SessionConfiguration{
					Model: models.ModelConfig{
						Provider:      provider,
						Model:         model,
						Temperature:   0.7,
						MaxTokens:     4096,
						ContextWindow: 128000,
					},
					Tools: models.ToolsConfig{
						EnableShell:       enableShell,
						EnableReadFile:    enableReadFile,
						EnableUnifiedExec: enableUnifiedExec,
					},
					ApprovalMode:  models.ApprovalMode(approvalMode),
					Cwd:           cwd,
					SessionSource: "cli",
				},
			}

			run, err := c.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
				ID:        workflowID,
				TaskQueue: defaultTaskQueue,
			}, "AgenticWorkflow", input)
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Workflow started: %s (run %s)\n", workflowID, run.GetRunID())
			fmt.Println(workflowID)
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "User message to send to the agent (required)")
	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "LLM model to use")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (openai, anthropic)")
	cmd.Flags().StringVar(&approvalMode, "approval-mode", "", "Approval mode: unless-trusted, never, on-failure, on-request")
	cmd.Flags().BoolVar(&enableShell, "enable-shell", true, "Enable shell tool")
	cmd.Flags().BoolVar(&enableReadFile, "enable-read-file", true, "Enable read_file tool")
	cmd.Flags().BoolVar(&enableUnifiedExec, "enable-unified-exec", false, "Enable interactive exec_command/write_stdin tools")
	return cmd
}

func newSendCmd() *cobra.Command {
	var workflowID, message string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a user message to a running workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" || message == "" {
				return fmt.Errorf("--workflow-id and --message are required")
			}
			c, err := dialTemporal(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
			defer cancel()

			handle, err := c.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
				WorkflowID:   workflowID,
				UpdateName:   workflow.UpdateUserInput,
				Args:         []interface{}{workflow.UserInput{Content: message}},
				WaitForStage: client.WorkflowUpdateStageCompleted,
			})
			if err != nil {
				return fmt.Errorf("send user input: %w", err)
			}

			var resp workflow.StateUpdateResponse
			if err := handle.Get(ctx, &resp); err != nil {
				return fmt.Errorf("user input rejected: %w", err)
			}
			fmt.Println(resp.TurnID)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow ID (required)")
	cmd.Flags().StringVar(&message, "message", "", "User message (required)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a running workflow's conversation history as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" {
				return fmt.Errorf("--workflow-id is required")
			}
			c, err := dialTemporal(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.QueryWorkflow(cmd.Context(), workflowID, "", workflow.QueryGetConversationItems)
			if err != nil {
				return fmt.Errorf("query history: %w", err)
			}
			var items []models.ConversationItem
			if err := resp.Get(&items); err != nil {
				return fmt.Errorf("decode history: %w", err)
			}
			return printJSON(items)
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow ID (required)")
	return cmd
}

func newInterruptCmd() *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "interrupt",
		Short: "Interrupt the current turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" {
				return fmt.Errorf("--workflow-id is required")
			}
			c, err := dialTemporal(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
			defer cancel()

			handle, err := c.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
				WorkflowID:   workflowID,
				UpdateName:   workflow.UpdateInterrupt,
				Args:         []interface{}{workflow.InterruptRequest{}},
				WaitForStage: client.WorkflowUpdateStageCompleted,
			})
			if err != nil {
				return fmt.Errorf("send interrupt: %w", err)
			}
			var resp workflow.InterruptResponse
			if err := handle.Get(ctx, &resp); err != nil {
				return fmt.Errorf("interrupt rejected: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Interrupt acknowledged: %v\n", resp.Acknowledged)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow ID (required)")
	return cmd
}

func newEndCmd() *cobra.Command {
	var workflowID, reason string

	cmd := &cobra.Command{
		Use:   "end",
		Short: "Shut down the workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" {
				return fmt.Errorf("--workflow-id is required")
			}
			c, err := dialTemporal(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
			defer cancel()

			handle, err := c.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
				WorkflowID:   workflowID,
				UpdateName:   workflow.UpdateShutdown,
				Args:         []interface{}{workflow.ShutdownRequest{Reason: reason}},
				WaitForStage: client.WorkflowUpdateStageCompleted,
			})
			if err != nil {
				return fmt.Errorf("send shutdown: %w", err)
			}
			var resp workflow.ShutdownResponse
			if err := handle.Get(ctx, &resp); err != nil {
				return fmt.Errorf("shutdown rejected: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Shutdown acknowledged: %v\n", resp.Acknowledged)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Shutdown reason (optional)")
	return cmd
}

func newUndoCmd() *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Restore the ghost snapshot of the last turn that changed files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" {
				return fmt.Errorf("--workflow-id is required")
			}
			c, err := dialTemporal(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
			defer cancel()

			handle, err := c.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
				WorkflowID:   workflowID,
				UpdateName:   workflow.UpdateUndo,
				Args:         []interface{}{workflow.UndoRequest{}},
				WaitForStage: client.WorkflowUpdateStageCompleted,
			})
			if err != nil {
				return fmt.Errorf("send undo: %w", err)
			}
			var resp workflow.UndoResponse
			if err := handle.Get(ctx, &resp); err != nil {
				return fmt.Errorf("undo rejected: %w", err)
			}
			if !resp.Success {
				return fmt.Errorf("%s", resp.Message)
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow ID (required)")
	return cmd
}

func newListCmd() *cobra.Command {
	var pageSize int
	var cursor, source, providers string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rollout.ListRequest{
				PageSize: pageSize,
				Cursor:   cursor,
				Source:   source,
			}
			if providers != "" {
				for _, p := range strings.Split(providers, ",") {
					if p = strings.TrimSpace(p); p != "" {
						req.ModelProviders = append(req.ModelProviders, p)
					}
				}
			}
			page, err := rollout.List(agentHome(cmd), req)
			if err != nil {
				return err
			}
			return printJSON(page)
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Items per page (default 25)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from a previous page")
	cmd.Flags().StringVar(&source, "source", "", "Filter by recording surface (cli, tui, ide)")
	cmd.Flags().StringVar(&providers, "model-providers", "", "Comma-separated provider filter")
	return cmd
}

func newArchiveCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move a conversation's journal out of the listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if conversationID == "" {
				return fmt.Errorf("--conversation-id is required")
			}
			dest, err := rollout.Archive(agentHome(cmd), conversationID)
			if err != nil {
				return err
			}
			fmt.Println(dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "Conversation ID (required)")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var conversationID, path string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a stored conversation into turns and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			journal := path
			if journal == "" {
				if conversationID == "" {
					return fmt.Errorf("--conversation-id or --path is required")
				}
				found, err := rollout.Find(agentHome(cmd), conversationID)
				if err != nil {
					return err
				}
				journal = found
			}
			_, events, err := rollout.ReadJournal(journal)
			if err != nil {
				return err
			}
			return printJSON(rollout.BuildTurns(events))
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation-id", "", "Conversation ID to replay")
	cmd.Flags().StringVar(&path, "path", "", "Explicit journal path (overrides --conversation-id)")
	return cmd
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
