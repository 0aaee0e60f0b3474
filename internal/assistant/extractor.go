package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/appointly/assistant/internal/observability/metrics"
	"github.com/appointly/assistant/pkg/logging"
)

// Extractor fills the named slots from an utterance. Implementations return
// only the slots they could find; absent keys mean "unknown". The
// deterministic and AI-backed implementations are composed by FallbackChain
// so the deterministic core stays testable without the network boundary.
type Extractor interface {
	Extract(ctx context.Context, text string, missing []string) (map[string]string, error)
}

// PatternExtractor is the deterministic layer: regex/lexicon entity
// extraction enhanced with relative-date resolution.
type PatternExtractor struct {
	Now func() time.Time
}

// NewPatternExtractor uses the wall clock unless a reference clock is set.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{Now: time.Now}
}

// Extract returns every slot it can find; the missing list is advisory here
// since deterministic extraction is cheap.
func (p *PatternExtractor) Extract(_ context.Context, text string, _ []string) (map[string]string, error) {
	now := p.Now()
	ents := ExtractEntities(text, now)

	// Relative expressions ("tomorrow", "next monday") only apply when no
	// explicit date matched; a bare year is the last resort.
	if ents.Date == "" {
		if resolved, ok := ResolveRelativeDate(text, now); ok {
			ents.Date = resolved.Format(StorageDateLayout)
		} else {
			ents.Date = extractYearOnly(text)
		}
	}

	out := make(map[string]string, 3)
	if ents.Person != "" {
		out[SlotPerson] = ents.Person
	}
	if ents.Date != "" {
		out[SlotDate] = ents.Date
	}
	if ents.Time != "" {
		out[SlotTime] = ents.Time
	}
	return out, nil
}

// AIExtractor asks the LLM boundary for slots the deterministic layers could
// not fill. Its textual response is parsed and sanitized here; any failure
// degrades to "no values found" so the dialogue can re-ask the user instead
// of surfacing an error.
type AIExtractor struct {
	llm     ChatCompleter
	timeout time.Duration
	logger  *logging.Logger

	// Metrics is optional; when set, fallback call outcomes are counted.
	Metrics *metrics.AssistantMetrics
}

// NewAIExtractor wraps the LLM boundary. The timeout bounds a single
// extraction call; the turn never blocks indefinitely on it.
func NewAIExtractor(llm ChatCompleter, timeout time.Duration, logger *logging.Logger) *AIExtractor {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &AIExtractor{llm: llm, timeout: timeout, logger: logger}
}

func (a *AIExtractor) Extract(ctx context.Context, text string, missing []string) (map[string]string, error) {
	if a == nil || a.llm == nil || len(missing) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	content, err := a.llm.Complete(ctx, slotExtractionPrompt(text, missing))
	if err != nil {
		a.logger.Warn("ai extraction failed, proceeding without values",
			"error", err, "missing", strings.Join(missing, ","))
		a.Metrics.ObserveAIExtraction("error")
		return nil, nil
	}

	clean := SanitizeAISlots(parseSlotResponse(content, missing))
	if len(clean) == 0 {
		a.Metrics.ObserveAIExtraction("empty")
	} else {
		a.Metrics.ObserveAIExtraction("ok")
	}
	return clean, nil
}

func slotExtractionPrompt(text string, missing []string) string {
	keys, _ := json.Marshal(missing)
	return fmt.Sprintf(`Extract the following entities from this text: %s
Text: %q

Format your response as valid JSON with these keys: %s
If an entity is not present in the text, set its value to null.

Important guidelines:
- For "person": extract the name of the person to meet with, doctor name, or other contact.
  If the text mentions "doctor" or "physician", use "Doctor" as the person.
  Do not extract common words like "one", "that", "available", "anytime" as person names.
- For "date": extract the appointment date in "Month Day, Year" format. Translate relative
  dates like "tomorrow" or "next Monday" when possible. Never return a time here.
- For "time": extract the appointment time in 12-hour format with AM/PM (e.g., "3:30 PM").
  If the text says "anytime", "whenever available" or similar, return "first available".
  Never return a date here.

Only return the JSON, nothing else.`, strings.Join(missing, ", "), text, keys)
}

var (
	jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	slotPairPattern  = `"%s"\s*:\s*(?:"([^"]*)"|null)`
)

// parseSlotResponse pulls a slot map out of the model's reply. Fenced code
// blocks are unwrapped first; if the body is not valid JSON a per-slot regex
// salvages whatever key/value pairs are recoverable.
func parseSlotResponse(content string, missing []string) map[string]string {
	body := strings.TrimSpace(content)
	if m := jsonFencePattern.FindStringSubmatch(body); m != nil {
		body = m[1]
	}

	// Models intermittently emit single quotes or uppercase NULL.
	body = strings.ReplaceAll(body, "'", `"`)
	body = strings.ReplaceAll(body, `"NULL"`, "null")
	body = strings.ReplaceAll(body, "NULL", "null")

	var decoded map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err == nil {
		out := make(map[string]string, len(decoded))
		for _, slot := range missing {
			if v, ok := decoded[slot]; ok && v != nil {
				if s, ok := v.(string); ok {
					out[slot] = s
				}
			}
		}
		return out
	}

	out := make(map[string]string, len(missing))
	for _, slot := range missing {
		re := regexp.MustCompile(fmt.Sprintf(slotPairPattern, slot))
		if m := re.FindStringSubmatch(body); m != nil && m[1] != "" {
			out[slot] = m[1]
		}
	}
	return out
}

// FallbackChain composes extractors in order; later layers only see the
// slots still missing after earlier layers ran.
type FallbackChain struct {
	layers []Extractor
}

// NewFallbackChain builds the layered extraction strategy. Nil layers are
// skipped so callers can wire the AI layer conditionally.
func NewFallbackChain(layers ...Extractor) *FallbackChain {
	chain := &FallbackChain{}
	for _, l := range layers {
		if l != nil {
			chain.layers = append(chain.layers, l)
		}
	}
	return chain
}

// Extract runs the layers in order. The missing list governs what later
// layers are asked for; everything any layer returns is kept, so a fresh
// value for an already-known slot still comes through.
func (c *FallbackChain) Extract(ctx context.Context, text string, missing []string) (map[string]string, error) {
	found := make(map[string]string)
	remaining := missing
	for i, layer := range c.layers {
		if i > 0 && len(remaining) == 0 {
			break
		}
		values, err := layer.Extract(ctx, text, remaining)
		if err != nil {
			return found, err
		}
		for slot, v := range values {
			if v != "" {
				found[slot] = v
			}
		}
		var next []string
		for _, slot := range remaining {
			if found[slot] == "" {
				next = append(next, slot)
			}
		}
		remaining = next
	}
	return found, nil
}
