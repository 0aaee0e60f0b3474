package assistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/appointly/assistant/internal/memory"
	"github.com/appointly/assistant/pkg/logging"
)

// The knowledge engine answers general questions that fall outside the
// appointment flows, and produces conversation summaries on request.

var summaryRequestPatterns = compileAll(
	`(conversation|chat) summary`,
	`summarize (our|this) (conversation|chat|discussion)`,
	`give me a summary`,
	`what have we (talked|discussed)( about)?`,
	`recap (our|this) (conversation|chat)`,
	`sum( |)up (our|this|the) (conversation|chat|discussion)`,
)

// IsSummaryRequest reports whether the utterance asks for a recap of the
// conversation so far.
func IsSummaryRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range summaryRequestPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// topicKeywords drives the keyword-based topic tagger; a topic matches when
// any of its keywords appears in the utterance.
var topicKeywords = map[string][]string{
	"appointment":     {"appointment", "schedule", "book", "reservation", "meeting", "availability"},
	"time_management": {"time", "schedule", "calendar", "availability", "busy", "free"},
	"contact":         {"contact", "person", "people", "name", "meet with", "call"},
	"health":          {"doctor", "health", "medical", "appointment", "checkup", "examination"},
	"business":        {"business", "meeting", "client", "customer", "project", "work"},
	"personal":        {"family", "friend", "personal", "vacation", "holiday", "break"},
}

// ExtractTopics tags the utterance with the coarse topics it touches.
func ExtractTopics(text string) []string {
	lower := strings.ToLower(text)
	var topics []string
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// questionCategories map a question to the prompt shaping that suits it;
// checked in order, first match wins.
var questionCategories = []struct {
	name     string
	keywords []string
}{
	{"ai", []string{"what is ai", "artificial intelligence", "machine learning", "neural network", "deep learning"}},
	{"science", []string{"physics", "chemistry", "biology", "astronomy", "science"}},
	{"history", []string{"history", "historical", "ancient", "world war", "century"}},
	{"technology", []string{"computer", "software", "hardware", "internet", "programming", "code", "technology"}},
}

func categorize(text string) string {
	lower := strings.ToLower(text)
	for _, c := range questionCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return "general"
}

var categoryGuidance = map[string]string{
	"ai": `Provide a helpful, accurate, and educational response about AI concepts.
Include relevant technical details where appropriate but explain them clearly.`,
	"science": `Provide a clear, accurate scientific explanation that is factually correct and educational.
Use analogies where helpful to explain complex concepts.`,
	"history": `Provide a historically accurate response with relevant dates and context.
Be objective and educational in your explanation of historical events or figures.`,
	"technology": `Provide a helpful technical explanation that is accurate and educational.
Include practical examples or relevant technical details where appropriate.`,
	"general": `Provide a helpful, accurate, and concise response. Focus on directly answering the question
with factual information. Be educational and informative.`,
}

var repeatQuestionPrefix = regexp.MustCompile(`^(hi|hello|hey)[,.!]?\s*`)

// KnowledgeEngine answers general-knowledge questions through the LLM
// boundary and generates conversation summaries from session memory.
type KnowledgeEngine struct {
	llm     ChatCompleter
	mem     memory.Store
	timeout time.Duration
	logger  *logging.Logger
}

// NewKnowledgeEngine wires the engine. A nil llm degrades every answer to
// the apology response; mem is required.
func NewKnowledgeEngine(llm ChatCompleter, mem memory.Store, timeout time.Duration, logger *logging.Logger) *KnowledgeEngine {
	if mem == nil {
		panic("assistant: memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &KnowledgeEngine{llm: llm, mem: mem, timeout: timeout, logger: logger.Component("knowledge")}
}

// Answer handles one knowledge turn: summary requests are served from
// memory, everything else goes to the model with category-shaped guidance.
func (k *KnowledgeEngine) Answer(ctx context.Context, sessionID, text string) string {
	if IsSummaryRequest(text) {
		return k.Summary(ctx, sessionID)
	}

	repeat := false
	if sessionID != "" {
		question := repeatQuestionPrefix.ReplaceAllString(strings.ToLower(text), "")
		if seen, err := k.mem.HasSimilarQuestion(ctx, sessionID, question); err == nil && seen {
			repeat = true
		}
		if err := k.mem.RecordQuestion(ctx, sessionID, question); err != nil {
			k.logger.Warn("failed to record question", "error", err)
		}
	}

	if k.llm == nil {
		return "I'm sorry, I couldn't retrieve that information right now. Please try asking in a different way."
	}

	category := categorize(text)
	prompt := fmt.Sprintf(`User query: '%s'
%s
Don't introduce yourself or mention that you're an AI. Just answer the question directly.
Do not use any markdown formatting (no # or * characters) in your response.`,
		text, categoryGuidance[category])
	if repeat {
		prompt += "\nThe user has asked about this before; acknowledge that briefly and build on the earlier answer."
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	response, err := k.llm.Complete(ctx, prompt)
	if err != nil {
		k.logger.Warn("knowledge query failed", "error", err, "category", category)
		return "I'm sorry, I couldn't retrieve that information right now. Please try asking in a different way."
	}
	return response
}

// Summary condenses the session's turn history into a single paragraph. With
// no model or a failing one it falls back to a count-based recap.
func (k *KnowledgeEngine) Summary(ctx context.Context, sessionID string) string {
	if sessionID == "" {
		return "No conversation history found."
	}
	turns, err := k.mem.Turns(ctx, sessionID)
	if err != nil {
		k.logger.Warn("failed to load turns for summary", "error", err)
		return "No conversation history found."
	}
	if len(turns) == 0 {
		return "No conversation history found."
	}

	if k.llm != nil {
		var transcript strings.Builder
		for _, t := range turns {
			fmt.Fprintf(&transcript, "User: %s\nAI: %s\n", t.User, t.AI)
		}

		prompt := fmt.Sprintf(`Summarize the following conversation between a user and an AI assistant in a single paragraph.
Focus on the main topics discussed, decisions made, and information gathered.
Keep the summary concise but informative.
Do not use any markdown formatting (no # or * characters) in your response.

Conversation:
%s
Summary:`, transcript.String())

		ctx, cancel := context.WithTimeout(ctx, k.timeout)
		defer cancel()
		if summary, err := k.llm.Complete(ctx, prompt); err == nil {
			return StripMarkdown(summary)
		} else {
			k.logger.Warn("summary generation failed", "error", err)
		}
	}

	return fmt.Sprintf("This conversation included %d exchanges about appointments and scheduling.", len(turns))
}
