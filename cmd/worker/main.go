// Worker executable for stratum-agent.
//
// Runs a Temporal worker hosting the agentic workflows and every activity
// they dispatch: LLM calls, tool execution, MCP server management, and
// instruction loading. OTEL providers are installed once at startup; export
// is enabled when OTEL_EXPORTER_OTLP_ENDPOINT is set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/stratumhq/stratum-agent/internal/activities"
	"github.com/stratumhq/stratum-agent/internal/execsession"
	"github.com/stratumhq/stratum-agent/internal/llm"
	"github.com/stratumhq/stratum-agent/internal/mcp"
	"github.com/stratumhq/stratum-agent/internal/sandbox"
	"github.com/stratumhq/stratum-agent/internal/telemetry"
	"github.com/stratumhq/stratum-agent/internal/temporalclient"
	"github.com/stratumhq/stratum-agent/internal/tools"
	"github.com/stratumhq/stratum-agent/internal/tools/handlers"
	"github.com/stratumhq/stratum-agent/internal/version"
	"github.com/stratumhq/stratum-agent/internal/workflow"
)

const defaultTaskQueue = "stratum-agent"

func main() {
	root := &cobra.Command{
		Use:           "worker",
		Short:         "stratum-agent Temporal worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var taskQueue, temporalHost, namespace string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), taskQueue, temporalHost, namespace)
		},
	}
	runCmd.Flags().StringVar(&taskQueue, "task-queue", defaultTaskQueue, "Temporal task queue to poll")
	runCmd.Flags().StringVar(&temporalHost, "temporal-host", "", "Temporal server address (overrides envconfig)")
	runCmd.Flags().StringVar(&namespace, "namespace", "", "Temporal namespace (overrides envconfig)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the worker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GitCommit)
		},
	}

	root.AddCommand(runCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWorker(ctx context.Context, taskQueue, temporalHost, namespace string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("no LLM credentials: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}

	// Process-wide OTEL providers, installed once and immutable afterwards.
	shutdownTelemetry, err := telemetry.InstallProviders(ctx,
		telemetry.ProviderConfigFromEnv("stratum-agent-worker", version.GitCommit))
	if err != nil {
		return fmt.Errorf("install telemetry providers: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	clientOpts, err := temporalclient.LoadClientOptions(temporalHost, namespace)
	if err != nil {
		return fmt.Errorf("load Temporal client config: %w", err)
	}
	c, err := client.Dial(clientOpts)
	if err != nil {
		return fmt.Errorf("connect to Temporal: %w", err)
	}
	defer c.Close()

	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(workflow.AgenticWorkflow)
	w.RegisterWorkflow(workflow.AgenticWorkflowContinued)
	w.RegisterWorkflow(workflow.HarnessWorkflow)
	w.RegisterWorkflow(workflow.HarnessWorkflowContinued)

	// Tool handlers. The shell tool goes through the sandbox manager; the
	// interactive exec tools share one session registry so sessions survive
	// across tool calls.
	sandboxMgr := sandbox.NewSandboxManager()
	execMgr := execsession.NewUnifiedExecManager()
	mcpStore := mcp.NewMcpStore()

	toolRegistry := tools.NewToolRegistry()
	toolRegistry.Register(handlers.NewShellToolWithSandbox(sandboxMgr))
	toolRegistry.Register(handlers.NewShellCommandTool(sandboxMgr))
	toolRegistry.Register(handlers.NewReadFileTool())
	toolRegistry.Register(handlers.NewWriteFileTool())
	toolRegistry.Register(handlers.NewListDirTool())
	toolRegistry.Register(handlers.NewGrepFilesTool())
	toolRegistry.Register(handlers.NewApplyPatchTool())
	toolRegistry.Register(handlers.NewUnifiedExecTool(execMgr))
	toolRegistry.Register(handlers.NewWriteStdinTool(execMgr))
	toolRegistry.Register(handlers.NewMCPHandler(mcpStore))

	logger.Info("registered tools", "count", toolRegistry.ToolCount())

	llmClient := llm.NewMultiProviderClient()

	llmActivities := activities.NewLLMActivities(llmClient)
	w.RegisterActivity(llmActivities.ExecuteLLMCall)
	w.RegisterActivity(llmActivities.ExecuteCompact)
	w.RegisterActivity(llmActivities.GenerateSuggestions)
	w.RegisterActivity(llmActivities.EstimateContextUsage)

	toolActivities := activities.NewToolActivities(toolRegistry)
	w.RegisterActivity(toolActivities.ExecuteTool)
	w.RegisterActivity(toolActivities.RestoreSnapshot)

	mcpActivities := activities.NewMcpActivities(mcpStore)
	w.RegisterActivity(mcpActivities.InitializeMcpServers)
	w.RegisterActivity(mcpActivities.CleanupMcpServers)

	instructionActivities := activities.NewInstructionActivities()
	w.RegisterActivity(instructionActivities.LoadWorkerInstructions)
	w.RegisterActivity(instructionActivities.LoadExecPolicy)
	w.RegisterActivity(instructionActivities.LoadPersonalInstructions)

	logger.Info("starting worker", "task_queue", taskQueue, "host", clientOpts.HostPort)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}
