package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
	"github.com/hobojuki/feishu-hobojuki/internal/conf"
)

// Route is the path a message took through the router
type Route string

const (
	RouteIgnored   Route = "ignored"
	RouteDuplicate Route = "duplicate"
	RouteSchedule  Route = "schedule"
	RouteURL       Route = "url"
	RouteSearch    Route = "search"
	RoutePlain     Route = "plain"
	RouteScheduled Route = "scheduled"
)

// BotConfig is the explicit router configuration
type BotConfig struct {
	HistoryLimit      int
	GenerationTimeout time.Duration
	ClassifierEnabled bool
	Summary           usecase.SummarizeOptions
	Search            usecase.SearchRequest // query is filled per message
	Reply             conf.ReplyPrompts
	Schedule          conf.SchedulePrompts
}

// Router decides how to answer an addressed message and sends exactly one reply
type Router struct {
	chatRepo repo.ChatRepo
	genRepo  repo.GenerationRepo
	ledger   repo.LedgerRepo

	contextUC  *usecase.ContextBuilderUsecase
	gatherer   *usecase.GathererUsecase
	classifier *usecase.ClassifierUsecase
	sanitizer  *usecase.Sanitizer
	queue      *usecase.ScheduleQueue

	cfg    BotConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewRouter creates a router. ledger may be nil.
func NewRouter(
	chatRepo repo.ChatRepo,
	genRepo repo.GenerationRepo,
	ledger repo.LedgerRepo,
	uc *biz.Usecases,
	cfg BotConfig,
	logger *zap.Logger,
) *Router {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		chatRepo:   chatRepo,
		genRepo:    genRepo,
		ledger:     ledger,
		contextUC:  uc.Context,
		gatherer:   uc.Gatherer,
		classifier: uc.Classifier,
		sanitizer:  uc.Sanitizer,
		queue:      uc.Schedule,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.Named("router"),
	}
}

// HandleMessage routes one inbound message. The returned error is the
// delivery failure, if any; routing decisions themselves never fail.
func (r *Router) HandleMessage(ctx context.Context, msg *domain.ChatMessage) (Route, error) {
	self, err := r.chatRepo.Self(ctx)
	if err != nil {
		return RouteIgnored, err
	}

	if msg.Author.Bot || msg.IsFrom(self.ID) {
		return RouteIgnored, nil
	}
	if !msg.MentionsParticipant(self.ID) {
		return RouteIgnored, nil
	}

	if r.ledger != nil {
		claimed, err := r.ledger.Claim(ctx, msg.ID)
		if err != nil {
			r.logger.Warn("ledger claim failed, replying anyway", zap.String("msg_id", msg.ID), zap.Error(err))
		} else if !claimed {
			r.logger.Info("duplicate delivery skipped", zap.String("msg_id", msg.ID))
			return RouteDuplicate, nil
		}
	}

	text := stripSelfMentions(msg.Content, self)
	log := r.logger.With(zap.String("msg_id", msg.ID), zap.String("chat_id", msg.ChatID))

	if prefix, rest, ok := r.matchSchedulePrefix(text); ok {
		reply := r.scheduleReply(msg, prefix, rest)
		err := r.chatRepo.Reply(ctx, msg.ID, reply)
		r.record(ctx, msg.ID, msg.ChatID, RouteSchedule, err)
		return RouteSchedule, err
	}

	stop := r.chatRepo.StartTyping(ctx, msg.ID)
	defer stop()

	gctx, cancel := context.WithTimeout(ctx, r.cfg.GenerationTimeout)
	defer cancel()

	route, reply, err := r.answer(gctx, msg.ChatID, text)
	if err != nil {
		log.Error("generate reply", zap.String("route", string(route)), zap.Error(err))
		reply = usecase.Render(r.cfg.Reply.ErrorReply, "error", err.Error())
	} else {
		log.Info("reply generated", zap.String("route", string(route)), zap.Int("chars", utf8.RuneCountInString(reply)))
	}

	sendErr := r.chatRepo.Reply(ctx, msg.ID, reply)
	if sendErr != nil {
		log.Error("send reply", zap.Error(sendErr))
	}
	r.record(ctx, msg.ID, msg.ChatID, route, errors.Join(err, sendErr))
	return route, sendErr
}

// answer picks the URL, search or plain path for text
func (r *Router) answer(ctx context.Context, chatID, text string) (Route, string, error) {
	if url := usecase.URLPattern.FindString(text); url != "" {
		reply, err := r.urlReply(ctx, chatID, url)
		return RouteURL, reply, err
	}

	if r.cfg.ClassifierEnabled && r.classifier != nil {
		judgment := r.classifier.Classify(ctx, text)
		if judgment.NeedsSearch && judgment.HasQuery() {
			reply, err := r.searchReply(ctx, chatID, judgment.SearchQuery)
			return RouteSearch, reply, err
		}
	}

	turns, err := r.contextUC.Assemble(ctx, chatID, r.cfg.HistoryLimit)
	if err != nil {
		return RoutePlain, "", err
	}
	out, err := r.genRepo.Chat(ctx, turns)
	if err != nil {
		return RoutePlain, "", err
	}
	return RoutePlain, r.sanitizer.Sanitize(out), nil
}

// urlReply summarizes the page and asks for a reply built on it
func (r *Router) urlReply(ctx context.Context, chatID, url string) (string, error) {
	turns, err := r.contextUC.Assemble(ctx, chatID, r.cfg.HistoryLimit)
	if err != nil {
		return "", err
	}

	summary, err := r.gatherer.Summarize(ctx, url, r.cfg.Summary)
	if err != nil {
		return "", err
	}

	notes := strings.Join(summary.Notes, "\n")
	if notes != "" {
		turns = append(turns, domain.SystemTurn(usecase.Render(r.cfg.Reply.URLNoteTemplate, "notes", notes)))
	}
	turns = append(turns,
		domain.SystemTurn(r.cfg.Reply.URLInstruction),
		domain.HumanTurn(usecase.Render(r.cfg.Reply.URLContent, "content", summary.Text)),
	)

	out, err := r.genRepo.Chat(ctx, turns)
	if err != nil {
		return "", err
	}
	return joinNonEmpty(r.cfg.Reply.SummarizingBanner, notes, r.sanitizer.Sanitize(out)), nil
}

// searchReply searches the web and asks for a reply grounded on the results
func (r *Router) searchReply(ctx context.Context, chatID, query string) (string, error) {
	turns, err := r.contextUC.Assemble(ctx, chatID, r.cfg.HistoryLimit)
	if err != nil {
		return "", err
	}

	req := r.cfg.Search
	req.Query = query
	results := r.gatherer.Search(ctx, req)

	turns = append(turns,
		domain.SystemTurn(r.cfg.Reply.SearchInstruction),
		domain.HumanTurn(usecase.Render(r.cfg.Reply.SearchContent, "results", usecase.FormatSearchResults(results))),
	)

	out, err := r.genRepo.Chat(ctx, turns)
	if err != nil {
		return "", err
	}
	return joinNonEmpty(r.cfg.Reply.SearchingBanner, r.sanitizer.Sanitize(out)), nil
}

// matchSchedulePrefix reports whether text is a scheduling command
func (r *Router) matchSchedulePrefix(text string) (prefix, rest string, ok bool) {
	for _, p := range r.cfg.Schedule.Prefixes {
		if p == "" || !strings.HasPrefix(text, p) {
			continue
		}
		rest = text[len(p):]
		first, _ := utf8.DecodeRuneInString(rest)
		if rest == "" || unicode.IsSpace(first) || unicode.IsDigit(first) {
			return p, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

func (r *Router) scheduleReply(msg *domain.ChatMessage, prefix, args string) string {
	hint := usecase.Render(r.cfg.Schedule.FormatHint, "prefix", prefix)

	timeOfDay, payload, err := usecase.ParseScheduleArgs(args)
	if err != nil {
		r.logger.Info("malformed schedule command", zap.String("msg_id", msg.ID), zap.Error(err))
		return hint
	}

	now := r.now()
	entry, err := r.queue.Schedule(timeOfDay, payload, domain.TargetOf(msg), now)
	if err != nil {
		r.logger.Info("schedule rejected", zap.String("msg_id", msg.ID), zap.Error(err))
		return hint
	}

	r.logger.Info("message scheduled",
		zap.String("id", entry.ID),
		zap.String("chat_id", msg.ChatID),
		zap.Time("fire_at", entry.FireAt),
	)
	return usecase.Render(r.cfg.Schedule.Confirmation,
		"time", entry.FireAt.Format("2006-01-02 15:04"),
		"relative", humanize.RelTime(entry.FireAt, now, "ago", "from now"),
		"id", entry.ID,
	)
}

// Deliver runs a fired entry: URL payloads go through the URL pipeline,
// everything else through search (query falls back to the payload)
func (r *Router) Deliver(ctx context.Context, entry domain.ScheduledEntry) error {
	log := r.logger.With(zap.String("entry_id", entry.ID), zap.String("chat_id", entry.Target.ChatID))

	gctx, cancel := context.WithTimeout(ctx, r.cfg.GenerationTimeout)
	defer cancel()

	var (
		reply string
		err   error
	)
	if url := usecase.URLPattern.FindString(entry.Payload); url != "" {
		reply, err = r.urlReply(gctx, entry.Target.ChatID, url)
	} else {
		query := entry.Payload
		if r.cfg.ClassifierEnabled && r.classifier != nil {
			if j := r.classifier.Classify(gctx, entry.Payload); j.HasQuery() {
				query = j.SearchQuery
			}
		}
		reply, err = r.searchReply(gctx, entry.Target.ChatID, query)
	}

	if err == nil {
		err = r.send(ctx, entry.Target, reply)
	}
	r.record(ctx, entry.Target.MessageID, entry.Target.ChatID, RouteScheduled, err)
	if err == nil {
		log.Info("scheduled entry delivered")
		return nil
	}

	log.Error("scheduled delivery failed", zap.Error(err))
	notice := usecase.Render(r.cfg.Schedule.FailureNotice, "error", err.Error())
	if nerr := r.send(ctx, entry.Target, notice); nerr != nil {
		log.Error("send failure notice", zap.Error(nerr))
	}
	return err
}

func (r *Router) send(ctx context.Context, target domain.ReplyTarget, text string) error {
	if target.MessageID != "" {
		return r.chatRepo.Reply(ctx, target.MessageID, text)
	}
	return r.chatRepo.Send(ctx, target.ChatID, text)
}

func (r *Router) record(ctx context.Context, msgID, chatID string, route Route, err error) {
	if r.ledger == nil {
		return
	}
	d := &repo.Delivery{MessageID: msgID, ChatID: chatID, Path: string(route), OK: err == nil}
	if err != nil {
		d.Error = err.Error()
	}
	if rerr := r.ledger.Record(context.WithoutCancel(ctx), d); rerr != nil {
		r.logger.Warn("record delivery", zap.Error(rerr))
	}
}

// stripSelfMentions removes the agent's own mention tokens from text
func stripSelfMentions(text string, self domain.Participant) string {
	if self.ID != "" {
		text = strings.NewReplacer(self.MentionToken(), "", self.RoleMentionToken(), "").Replace(text)
	}
	return strings.TrimSpace(text)
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
