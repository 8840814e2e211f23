package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Persona    PersonaPrompts    `yaml:"persona"`
	Classifier ClassifierPrompts `yaml:"classifier"`
	Summary    SummaryPrompts    `yaml:"summary"`
	Reply      ReplyPrompts      `yaml:"reply"`
	Schedule   SchedulePrompts   `yaml:"schedule"`

	// Source is the file the config was read from, empty for defaults
	Source string `yaml:"-"`
}

// PersonaPrompts contains the built-in system prompt
type PersonaPrompts struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// ClassifierPrompts contains intent classifier prompts
type ClassifierPrompts struct {
	Prompt string `yaml:"prompt"` // supports {{question}}
}

// SummaryPrompts contains page summarization prompts
type SummaryPrompts struct {
	ChunkPrompt   string `yaml:"chunk_prompt"`   // supports {{content}}
	TruncatedNote string `yaml:"truncated_note"` // supports {{limit}}
}

// ReplyPrompts contains instruction turns, banners and notices used by the router.
// Templates use {{notes}}, {{content}}, {{results}} and {{error}} placeholders.
type ReplyPrompts struct {
	URLInstruction    string `yaml:"url_instruction"`
	URLNoteTemplate   string `yaml:"url_note_template"`
	URLContent        string `yaml:"url_content"`
	SearchInstruction string `yaml:"search_instruction"`
	SearchContent     string `yaml:"search_content"`
	SummarizingBanner string `yaml:"summarizing_banner"`
	SearchingBanner   string `yaml:"searching_banner"`
	ErrorReply        string `yaml:"error_reply"`
	CensorNotice      string `yaml:"censor_notice"`
}

// SchedulePrompts contains scheduling command settings.
// Confirmation supports {{time}}, {{relative}} and {{id}}; FormatHint supports {{prefix}}.
type SchedulePrompts struct {
	Prefixes      []string `yaml:"prefixes"`
	Confirmation  string   `yaml:"confirmation"`
	FormatHint    string   `yaml:"format_hint"`
	FailureNotice string   `yaml:"failure_notice"`
}

// LoadPromptsConfig loads prompts configuration from YAML file
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/hobojuki/prompts.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string

	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("read prompts config %s: not found", configPath)
		}
		return DefaultPromptsConfig(), nil
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()
	config.Source = loadedPath

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}

	fill(&c.Persona.SystemPrompt, defaults.Persona.SystemPrompt)
	fill(&c.Classifier.Prompt, defaults.Classifier.Prompt)
	fill(&c.Summary.ChunkPrompt, defaults.Summary.ChunkPrompt)
	fill(&c.Summary.TruncatedNote, defaults.Summary.TruncatedNote)

	fill(&c.Reply.URLInstruction, defaults.Reply.URLInstruction)
	fill(&c.Reply.URLNoteTemplate, defaults.Reply.URLNoteTemplate)
	fill(&c.Reply.URLContent, defaults.Reply.URLContent)
	fill(&c.Reply.SearchInstruction, defaults.Reply.SearchInstruction)
	fill(&c.Reply.SearchContent, defaults.Reply.SearchContent)
	fill(&c.Reply.SummarizingBanner, defaults.Reply.SummarizingBanner)
	fill(&c.Reply.SearchingBanner, defaults.Reply.SearchingBanner)
	fill(&c.Reply.ErrorReply, defaults.Reply.ErrorReply)
	fill(&c.Reply.CensorNotice, defaults.Reply.CensorNotice)

	if len(c.Schedule.Prefixes) == 0 {
		c.Schedule.Prefixes = defaults.Schedule.Prefixes
	}
	fill(&c.Schedule.Confirmation, defaults.Schedule.Confirmation)
	fill(&c.Schedule.FormatHint, defaults.Schedule.FormatHint)
	fill(&c.Schedule.FailureNotice, defaults.Schedule.FailureNotice)
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Persona: PersonaPrompts{
			SystemPrompt: DefaultSystemPrompt,
		},
		Classifier: ClassifierPrompts{
			Prompt: usecase.DefaultClassifierPrompt,
		},
		Summary: SummaryPrompts{
			ChunkPrompt:   "要約タスク: 以下の文章を要約してください。どんな言語でも要約を日本語で行ってください。\n\n{{content}}",
			TruncatedNote: "info: The page content is too long. Only the first {{limit}} characters were read.",
		},
		Reply: ReplyPrompts{
			URLInstruction:    "今話題のものや動画にできそうな事をもとに動画の台本とタイトルを生成してください",
			URLNoteTemplate:   "１つ目のURL要約中: {{notes}}",
			URLContent:        "本日のネタ: {{content}}",
			SearchInstruction: "以下のWeb検索結果を参考にして、会話の最後の質問に日本語で答えてください。",
			SearchContent:     "検索結果:\n{{results}}",
			SummarizingBanner: "🔗 URLを要約中…",
			SearchingBanner:   "🔍 検索中…",
			ErrorReply:        "エラーが発生しました: {{error}}",
			CensorNotice:      "検閲により削除済み",
		},
		Schedule: SchedulePrompts{
			Prefixes:      []string{"/schedule", "schedule", "予約"},
			Confirmation:  "{{time}} に送信します ({{relative}})",
			FormatHint:    "Format: {{prefix}} HH:MM <message>",
			FailureNotice: "予約メッセージの送信に失敗しました: {{error}}",
		},
	}
}

// DefaultSystemPrompt is used when no system prompt file is present
const DefaultSystemPrompt = "あなたは知識豊富なアシスタントです。会話を良く理解し、適切な返答を行います。基本的に日本語で答えてください。" +
	"そっけない対応が得意なので、そうしてください。" +
	"「うん」「はい」「そうなんだ」「そっか」「おつかれ」「最高やん」「おもろ」などをよく返答として使います。語尾で三河弁がよく出ます。" +
	"あなたの年齢は24歳で、愛知県に住む情報工学の大学院生として振る舞ってください。"
