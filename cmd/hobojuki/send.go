package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hobojuki/feishu-hobojuki/internal/data"
	"github.com/hobojuki/feishu-hobojuki/internal/infra/feishu"
)

var sendMention string

var sendCmd = &cobra.Command{
	Use:   "send [chat_id] [message]",
	Short: "Send a text message to a Feishu chat as the bot",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendMention, "mention", "", "User open_id to mention before the message")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		return errors.New("FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
	}

	chatID := args[0]
	text := strings.Join(args[1:], " ")
	if sendMention != "" {
		text = fmt.Sprintf(`<at user_id="%s"></at> %s`, sendMention, text)
	}

	chat := data.NewFeishuRepo(feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger), logger)
	if err := chat.Send(cmd.Context(), chatID, text); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Message sent")
	return nil
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [chat_id]",
	Short: "Print recent messages of a chat as the bot sees them",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of messages")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		return errors.New("FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
	}

	chat := data.NewFeishuRepo(feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger), logger)
	msgs, err := chat.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range msgs {
		author := m.Author.Label()
		if m.Author.Bot {
			author += " (bot)"
		}
		fmt.Fprintf(out, "%s  %s: %s\n", m.CreatedAt.Local().Format("01-02 15:04"), author, m.Content)
	}
	return nil
}
