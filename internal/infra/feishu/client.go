package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

const openAPIBase = "https://open.feishu.cn/open-apis"

// AllMentionID is the pseudo member ID of an @all mention
const AllMentionID = "all"

// Message represents a received Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	MsgType    string // text, post
	ChatType   string // p2p, group
	Content    string // text with mention keys rewritten to <@open_id> / <@&all>
	Sender     *Sender
	Mentions   []Mention
	CreateTime int64 // milliseconds
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id for users, app_id for bots in history
	SenderType string // user, app
	TenantKey  string
}

// IsApp reports whether the sender is a bot
func (s *Sender) IsApp() bool {
	return s != nil && s.SenderType == "app"
}

// Mention is one @ in a message
type Mention struct {
	Key    string // @_user_1
	OpenID string
	Name   string
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID   string `json:"member_id"`
	MemberType string `json:"member_type"`
	Name       string `json:"name"`
}

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID      string
	MsgType    string
	Content    string
	CreateTime int64
	Sender     *Sender
	Mentions   []Mention
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	mu        sync.RWMutex
	botOpenID string
	botName   string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.Named("feishu"),
		ready:     make(chan struct{}),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Ready is closed once the bot identity is known
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// BotIdentity returns the bot's open_id and name; ok is false before Ready
func (c *Client) BotIdentity() (openID, name string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botOpenID, c.botName, c.botOpenID != ""
}

// Start connects to Feishu via WebSocket and blocks while listening for messages
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.fetchBotIdentity(c.ctx); err != nil {
		return fmt.Errorf("fetch bot identity: %w", err)
	}

	// Must return quickly so the SDK can ACK; Feishu redelivers on timeout
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(c.ctx)
}

// fetchBotIdentity gets a tenant token and then /bot/v3/info
func (c *Client) fetchBotIdentity(ctx context.Context) error {
	tokenBody, _ := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		openAPIBase+"/auth/v3/tenant_access_token/internal", strings.NewReader(string(tokenBody)))
	if err != nil {
		return err
	}
	tokenReq.Header.Set("Content-Type", "application/json")

	tokenResp, err := http.DefaultClient.Do(tokenReq)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	defer tokenResp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	if tokenResult.Code != 0 {
		return fmt.Errorf("token API error: %s", tokenResult.Msg)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAPIBase+"/bot/v3/info", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tokenResult.TenantAccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	c.mu.Lock()
	c.botOpenID = botResult.Bot.OpenID
	c.botName = botResult.Bot.AppName
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })

	c.logger.Info("bot identity",
		zap.String("open_id", botResult.Bot.OpenID),
		zap.String("name", botResult.Bot.AppName),
	)
	return nil
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// handleMessage converts an event into a Message. Bot-sent messages are
// passed through with SenderType "app"; callers decide what to ignore.
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	rawMsg := event.Event.Message

	msg := &Message{
		ChatID:  deref(rawMsg.ChatId),
		MsgID:   deref(rawMsg.MessageId),
		MsgType: deref(rawMsg.MessageType),
	}
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}
	msg.ChatType = deref(rawMsg.ChatType)

	if s := event.Event.Sender; s != nil {
		msg.Sender = &Sender{
			SenderType: deref(s.SenderType),
			TenantKey:  deref(s.TenantKey),
		}
		if s.SenderId != nil {
			msg.Sender.SenderID = deref(s.SenderId.OpenId)
		}
	}

	for _, m := range rawMsg.Mentions {
		mention := Mention{
			Key:  deref(m.Key),
			Name: deref(m.Name),
		}
		if m.Id != nil {
			mention.OpenID = deref(m.Id.OpenId)
		}
		msg.Mentions = append(msg.Mentions, mention)
	}

	content, ok := parseContent(msg.MsgType, deref(rawMsg.Content))
	if !ok {
		c.logger.Debug("unsupported message type", zap.String("type", msg.MsgType), zap.String("msg_id", msg.MsgID))
		return
	}
	msg.Content = RewriteMentionKeys(content, msg.Mentions)

	c.logger.Info("message received",
		zap.String("msg_id", msg.MsgID),
		zap.String("chat_id", msg.ChatID),
		zap.String("chat_type", msg.ChatType),
		zap.Int("mentions", len(msg.Mentions)),
	)

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// parseContent extracts plain text from text and post messages
func parseContent(msgType, raw string) (string, bool) {
	switch msgType {
	case "text":
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return "", false
		}
		return parsed.Text, true
	case "post":
		return parsePostContent(raw), true
	default:
		return "", false
	}
}

// parsePostContent flattens a rich text message; "at" elements keep their mention key
func parsePostContent(raw string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			Href   string `json:"href,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var sb strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				sb.WriteString(elem.Text)
			case "a":
				if elem.Href != "" {
					sb.WriteString(elem.Href)
				} else {
					sb.WriteString(elem.Text)
				}
			case "at":
				sb.WriteString(elem.UserID)
			}
		}
		if sb.Len() > 0 {
			lines = append(lines, sb.String())
		}
	}
	return strings.Join(lines, "\n")
}

// RewriteMentionKeys replaces placeholder keys (@_user_1, @_all) with
// <@open_id> and <@&all> tokens
func RewriteMentionKeys(text string, mentions []Mention) string {
	// Replacer compares in argument order, so @_user_11 must precede @_user_1
	sorted := slices.Clone(mentions)
	slices.SortStableFunc(sorted, func(a, b Mention) int { return len(b.Key) - len(a.Key) })

	pairs := []string{"@_all", "<@&" + AllMentionID + ">"}
	for _, m := range sorted {
		if m.Key == "" || m.OpenID == "" {
			continue
		}
		pairs = append(pairs, m.Key, "<@"+m.OpenID+">")
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func textContent(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}

	c.logger.Debug("message sent", zap.String("chat_id", chatID))
	return nil
}

// Reply replies to a message in its chat
func (c *Client) Reply(ctx context.Context, messageID, text string) error {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("reply message error: %s", resp.Msg)
	}

	c.logger.Debug("reply sent", zap.String("msg_id", messageID))
	return nil
}

// AddReaction adds an emoji reaction to a message and returns its reaction ID
func (c *Client) AddReaction(ctx context.Context, messageID, emojiType string) (string, error) {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiType).Build()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("add reaction failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("add reaction error: %s", resp.Msg)
	}
	if resp.Data == nil {
		return "", nil
	}
	return deref(resp.Data.ReactionId), nil
}

// RemoveReaction removes an emoji reaction from a message
func (c *Client) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	req := larkim.NewDeleteMessageReactionReqBuilder().
		MessageId(messageID).
		ReactionId(reactionID).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("remove reaction failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("remove reaction error: %s", resp.Msg)
	}
	return nil
}

// GetChatHistory retrieves recent messages from a chat, newest first (pageSize max 50)
func (c *Client) GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*HistoryMessage, error) {
	if pageSize > 50 {
		pageSize = 50
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	// The API defaults to ascending order, which would return the oldest messages
	req := larkim.NewListMessageReqBuilder().
		ContainerIdType("chat").
		ContainerId(chatID).
		SortType("ByCreateTimeDesc").
		PageSize(pageSize).
		Build()

	resp, err := c.larkCli.Im.Message.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat history failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat history error: %s", resp.Msg)
	}

	var messages []*HistoryMessage
	for _, item := range resp.Data.Items {
		msg := &HistoryMessage{
			MsgID:   deref(item.MessageId),
			MsgType: deref(item.MsgType),
		}
		if ts, err := strconv.ParseInt(deref(item.CreateTime), 10, 64); err == nil {
			msg.CreateTime = ts
		}

		for _, m := range item.Mentions {
			msg.Mentions = append(msg.Mentions, Mention{
				Key:    deref(m.Key),
				OpenID: deref(m.Id),
				Name:   deref(m.Name),
			})
		}

		if item.Body != nil && item.Body.Content != nil {
			if content, ok := parseContent(msg.MsgType, *item.Body.Content); ok {
				msg.Content = RewriteMentionKeys(content, msg.Mentions)
			} else {
				msg.Content = "[" + msg.MsgType + "]"
			}
		}

		if item.Sender != nil {
			msg.Sender = &Sender{
				SenderID:   deref(item.Sender.Id),
				SenderType: deref(item.Sender.SenderType),
				TenantKey:  deref(item.Sender.TenantKey),
			}
		}

		messages = append(messages, msg)
	}

	c.logger.Debug("history retrieved", zap.String("chat_id", chatID), zap.Int("count", len(messages)))
	return messages, nil
}

// GetChatMembers retrieves all members of a chat
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	var pageToken string

	for {
		reqBuilder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			members = append(members, &ChatMember{
				MemberID:   deref(item.MemberId),
				MemberType: deref(item.MemberIdType),
				Name:       deref(item.Name),
			})
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	return members, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
