// Command hobojuki-mcp exposes the hobojuki admin API as MCP tools over stdio.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/mcp"
)

const defaultAPIURL = "http://127.0.0.1:9876"

var version = "dev"

var (
	apiURL  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hobojuki-mcp",
	Short: "MCP stdio server for the hobojuki admin API",
	Long: `Serves summarize, search, classify and schedule tools over the MCP stdio
transport. Every tool call is forwarded to a running "hobojuki serve" admin API.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	_ = godotenv.Load()

	def := os.Getenv("HOBOJUKI_API_URL")
	if def == "" {
		def = defaultAPIURL
	}
	rootCmd.Flags().StringVar(&apiURL, "api", def, "hobojuki admin API base URL")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so logs go to stderr
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("hobojuki-mcp started", zap.String("api", apiURL), zap.String("version", version))

	server := mcp.NewServer(mcp.NewHandler(mcp.NewClient(apiURL)), version)
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
