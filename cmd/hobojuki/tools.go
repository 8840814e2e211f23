package main

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
	"github.com/hobojuki/feishu-hobojuki/internal/data"
)

var (
	toolTimeout time.Duration
	rawGenerate bool
	maxChars    int
	maxResults  int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the generation backend and stream the answer",
	Long: `Sends the system prompt and the question to the configured backend and
prints the answer as it streams in.

With --generate (ollama only) the question is sent as a bare prompt to /generate
without the system prompt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [url]",
	Short: "Summarize a web page",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the web and print numbered results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [question]",
	Short: "Show the intent classifier's judgment as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, summarizeCmd, searchCmd, classifyCmd} {
		c.Flags().DurationVar(&toolTimeout, "timeout", 5*time.Minute, "Operation timeout")
	}
	askCmd.Flags().BoolVar(&rawGenerate, "generate", false, "Use the bare /generate completion (ollama only)")
	summarizeCmd.Flags().IntVar(&maxChars, "max-chars", 0, "Target summary length in characters (default SUMMARY_MAX_CHARS)")
	searchCmd.Flags().IntVarP(&maxResults, "num", "n", 0, "Number of results (default SEARCH_MAX_RESULTS)")
}

// withTools runs fn with one-shot repositories and usecases
func withTools(cmd *cobra.Command, fn func(ctx context.Context, repos *data.Repositories, files *promptFiles) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), toolTimeout)
	defer cancel()

	repos, err := newToolRepositories(ctx)
	if err != nil {
		return err
	}
	defer repos.Close()

	return fn(ctx, repos, newPromptFiles())
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	return withTools(cmd, func(ctx context.Context, repos *data.Repositories, files *promptFiles) error {
		var stream iter.Seq2[string, error]
		if rawGenerate {
			ollama, ok := repos.Generation.(*data.OllamaRepo)
			if !ok {
				return fmt.Errorf("--generate requires LLM_PROVIDER=ollama (got %s)", cfg.LLM.Provider)
			}
			stream = ollama.StreamGenerate(ctx, question)
		} else {
			turns := []domain.Turn{domain.HumanTurn(question)}
			if prompt := files.currentSystemPrompt(); prompt != "" {
				turns = append([]domain.Turn{domain.SystemTurn(prompt)}, turns...)
			}
			stream = repos.Generation.StreamChat(ctx, turns)
		}

		out := cmd.OutOrStdout()
		for fragment, err := range stream {
			if err != nil {
				fmt.Fprintln(out)
				return err
			}
			fmt.Fprint(out, fragment)
		}
		fmt.Fprintln(out)
		return nil
	})
}

func runSummarize(cmd *cobra.Command, args []string) error {
	return withTools(cmd, func(ctx context.Context, repos *data.Repositories, files *promptFiles) error {
		uc := buildUsecases(repos, files)

		opts := cfg.Summary
		if maxChars > 0 {
			opts.MaxChars = maxChars
		}
		result, err := uc.Gatherer.Summarize(ctx, args[0], opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, note := range result.Notes {
			fmt.Fprintln(os.Stderr, note)
		}
		fmt.Fprintln(out, usecase.SanitizeBreakrow(result.Text))
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withTools(cmd, func(ctx context.Context, repos *data.Repositories, files *promptFiles) error {
		uc := buildUsecases(repos, files)

		req := searchRequest()
		req.Query = strings.Join(args, " ")
		if maxResults > 0 {
			req.MaxResults = maxResults
		}
		fmt.Fprint(cmd.OutOrStdout(), usecase.FormatSearchResults(uc.Gatherer.Search(ctx, req)))
		return nil
	})
}

func runClassify(cmd *cobra.Command, args []string) error {
	return withTools(cmd, func(ctx context.Context, repos *data.Repositories, files *promptFiles) error {
		uc := buildUsecases(repos, files)

		judgment := uc.Classifier.Classify(ctx, strings.Join(args, " "))
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(judgment)
	})
}
