package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/appointly/assistant/internal/memory"
	"github.com/appointly/assistant/internal/observability/metrics"
	"github.com/appointly/assistant/pkg/logging"
)

// TurnRequest is one user utterance plus the dialogue state echoed back by
// the client.
type TurnRequest struct {
	Text      string
	Context   *Context
	SessionID string
	IsSpeech  bool
}

// TurnResponse carries the assistant's reply and the updated state the
// client must echo on the next turn.
type TurnResponse struct {
	Response  string
	Context   *Context
	SessionID string
}

// knowledgeIndicators is the backup check for questions the intent patterns
// miss; any hit routes the turn to the knowledge engine.
var knowledgeIndicators = []string{
	"what is", "what are", "who is", "who are", "how does", "how do", "explain", "tell me about",
	"when was", "when is", "where is", "where are", "why is", "why are", "define", "definition",
	"defination", "meaning of", "can you explain", "what does", "tell me more",
}

var doctorPhrases = []string{
	"see a doctor", "see the doctor", "need a doctor", "need to see a doctor",
}

var newAppointmentKeywords = []string{
	"new appointment", "another appointment", "different appointment",
	"schedule another", "book another", "make another",
}

// Service orchestrates one conversation turn: intent routing, layered
// entity extraction, slot merging, the dialogue machine and session memory.
type Service struct {
	dialog    *Dialog
	extractor Extractor
	knowledge *KnowledgeEngine
	llm       ChatCompleter // optional, for ambiguous-intent classification
	mem       memory.Store
	metrics   *metrics.AssistantMetrics
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires the turn pipeline. dialog, extractor, knowledge and mem
// are required; llm and m may be nil.
func NewService(dialog *Dialog, extractor Extractor, knowledge *KnowledgeEngine, llm ChatCompleter, mem memory.Store, m *metrics.AssistantMetrics, logger *logging.Logger) *Service {
	if dialog == nil {
		panic("assistant: dialog cannot be nil")
	}
	if extractor == nil {
		panic("assistant: extractor cannot be nil")
	}
	if knowledge == nil {
		panic("assistant: knowledge engine cannot be nil")
	}
	if mem == nil {
		panic("assistant: memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		dialog:    dialog,
		extractor: extractor,
		knowledge: knowledge,
		llm:       llm,
		mem:       mem,
		metrics:   m,
		logger:    logger.Component("service"),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// sessionLock serializes turns within one session; concurrent turns for
// different sessions proceed independently.
func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// ProcessTurn handles one utterance end to end. Failures degrade to apology
// responses; the context returned is always safe to echo back.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) TurnResponse {
	start := s.now()

	if req.SessionID != "" {
		l := s.sessionLock(req.SessionID)
		l.Lock()
		defer l.Unlock()
	}

	c := req.Context
	if c == nil {
		c = &Context{}
	}
	c.Normalize()

	response, intentLabel := s.processTurn(ctx, req.Text, c, req.SessionID)
	s.metrics.ObserveTurn(intentLabel, s.now().Sub(start).Seconds())

	return TurnResponse{
		Response:  FormatForOutput(response, req.IsSpeech),
		Context:   c,
		SessionID: req.SessionID,
	}
}

func (s *Service) processTurn(ctx context.Context, text string, c *Context, sessionID string) (string, string) {
	if strings.TrimSpace(text) == "" {
		return "I didn't receive any message. How can I help you?", string(IntentUnknown)
	}

	if IsSummaryRequest(text) {
		return s.knowledge.Summary(ctx, sessionID), string(IntentKnowledge)
	}

	lower := strings.ToLower(text)

	// "I need to see a doctor" is a scheduling request with an implied
	// person.
	if containsAny(lower, doctorPhrases) {
		c.Intent = IntentSchedule
		c.Person = "Doctor"
	}

	// Explicit intent switches mid-flow keep person and date but abandon the
	// rest of the old flow.
	switch {
	case strings.Contains(lower, "availability") || strings.Contains(lower, "availibility"):
		s.switchIntent(c, IntentAvailability)
	case strings.Contains(lower, "cancel") && strings.Contains(lower, "appointment"):
		s.switchIntent(c, IntentCancel)
	}

	detected := ClassifyIntent(text)

	if detected == IntentKnowledge || containsAny(lower, knowledgeIndicators) {
		return s.answerKnowledge(ctx, text, sessionID), string(IntentKnowledge)
	}

	// "book another appointment" starts a clean flow; only a person named in
	// this same utterance carries over.
	if containsAny(lower, newAppointmentKeywords) {
		ents := ExtractEntities(text, s.now())
		c.Reset()
		c.Intent = IntentSchedule
		if ents.Person != "" && personAcceptable(ents.Person, PhaseInit, "") {
			c.Person = ents.Person
		}
		return s.runAppointmentFlow(ctx, text, c, sessionID), string(c.Intent)
	}

	// A finished flow's context is spent; the next turn starts fresh.
	if c.Phase == PhaseCompleted {
		c.Reset()
	}

	// Without a live intent, the most recent appointment intent from session
	// memory picks the flow back up.
	if !c.Intent.IsAppointmentIntent() && sessionID != "" {
		if prev, err := s.mem.PreviousIntent(ctx, sessionID, 5); err == nil {
			if pi := Intent(prev); pi.IsAppointmentIntent() {
				c.Intent = pi
			}
		}
	}

	// A freshly detected appointment intent that differs from the live one
	// wins and restarts the flow.
	if detected.IsAppointmentIntent() && detected != c.Intent {
		c.Reset()
		c.Intent = detected
		c.Phase = PhaseInit
	}

	if !c.Intent.IsAppointmentIntent() {
		// A bare date or time can still be a follow-up to an earlier
		// appointment conversation.
		ents := ExtractEntities(text, s.now())
		_, hasRelative := ResolveRelativeDate(text, s.now())
		if (hasRelative || ents.Date != "" || ents.Time != "") && sessionID != "" {
			if prev, err := s.mem.PreviousIntent(ctx, sessionID, 5); err == nil {
				if pi := Intent(prev); pi.IsAppointmentIntent() && pi != IntentList {
					c.Intent = pi
				}
			}
		}
	}

	if !c.Intent.IsAppointmentIntent() {
		// Longer ambiguous messages get one shot at model-based intent
		// classification before falling back to knowledge handling.
		if ai := s.classifyWithModel(ctx, text); ai.IsAppointmentIntent() {
			c.Intent = ai
			c.Phase = PhaseInit
		} else {
			return s.answerKnowledge(ctx, text, sessionID), string(IntentKnowledge)
		}
	}

	return s.runAppointmentFlow(ctx, text, c, sessionID), string(c.Intent)
}

// switchIntent rewires the context onto a new intent track, carrying only
// person and date across.
func (s *Service) switchIntent(c *Context, intent Intent) {
	person, date := c.Person, c.Date
	c.Reset()
	c.Intent = intent
	c.Phase = PhaseInit
	c.Person = person
	c.Date = date
}

func (s *Service) answerKnowledge(ctx context.Context, text, sessionID string) string {
	answer := s.knowledge.Answer(ctx, sessionID, text)
	s.recordTurn(ctx, sessionID, text, answer, IntentKnowledge)
	return answer
}

// runAppointmentFlow performs extraction, merging and one step of the
// dialogue machine.
func (s *Service) runAppointmentFlow(ctx context.Context, text string, c *Context, sessionID string) string {
	turnStartPhase := c.Phase
	turnStartPerson := c.Person

	missing := Entities{}.Missing(c.Intent, c)
	values, err := s.extractor.Extract(ctx, text, missing)
	if err != nil {
		s.logger.Warn("entity extraction failed", "error", err)
	}
	ents := Entities{
		Person: values[SlotPerson],
		Date:   values[SlotDate],
		Time:   values[SlotTime],
	}

	// While a person question is open, a short reply is taken wholesale as
	// the name. The flow's opening utterance never is: at init nothing has
	// been asked yet, so "schedule an appointment" stays an opener, not a
	// person called "Schedule an appointment".
	if ents.Person == "" && c.Person == "" &&
		turnStartPhase != PhaseInit && personAskingPhases[turnStartPhase] {
		candidate := strings.TrimSpace(text)
		fields := strings.Fields(candidate)
		if len(fields) <= 3 && len(candidate) > 1 && nameLikeTokens(fields) {
			candidate = titleCase(candidate)
			if personAcceptable(candidate, turnStartPhase, turnStartPerson) {
				ents.Person = candidate
			}
		}
	}

	writes := MergeEntities(c, ents, turnStartPhase, turnStartPerson)
	for _, w := range writes {
		if sessionID == "" {
			continue
		}
		if err := s.mem.RecordEntity(ctx, sessionID, w.Slot, w.Value); err != nil {
			s.logger.Warn("failed to record entity", "error", err, "slot", w.Slot)
		}
	}

	if sessionID != "" {
		for _, topic := range ExtractTopics(text) {
			if err := s.mem.RecordTopic(ctx, sessionID, topic); err != nil {
				s.logger.Warn("failed to record topic", "error", err)
			}
		}
	}

	response, err := s.dialog.Next(ctx, text, c)
	if err != nil {
		s.logger.Error("dialog step failed", "error", err, "intent", c.Intent, "phase", c.Phase)
		response = "I'm sorry, something went wrong. Could you rephrase that?"
	}

	s.recordTurn(ctx, sessionID, text, response, c.Intent)
	return response
}

func (s *Service) recordTurn(ctx context.Context, sessionID, user, ai string, intent Intent) {
	if sessionID == "" {
		return
	}
	turn := memory.Turn{User: user, AI: ai, Intent: string(intent), At: s.now()}
	if err := s.mem.RecordTurn(ctx, sessionID, turn); err != nil {
		s.logger.Warn("failed to record turn", "error", err)
	}
}

// classifyWithModel asks the LLM to categorize an ambiguous multi-word
// message. Anything but a clean appointment category answer returns unknown.
func (s *Service) classifyWithModel(ctx context.Context, text string) Intent {
	if s.llm == nil || len(strings.Fields(text)) <= 3 {
		return IntentUnknown
	}

	prompt := `Analyze this message and determine the most appropriate category:
Message: "` + text + `"

Choose ONE of these categories:
1. schedule_appointment - if the message is about creating a new appointment
2. cancel_appointment - if the message is about canceling an existing appointment
3. check_availability - if the message is about checking when someone is available
4. list_appointments - if the message is about viewing existing appointments
5. general_knowledge - if the message is asking a general question not related to appointments

Just return the category name, nothing else.`

	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("model intent classification failed", "error", err)
		return IntentUnknown
	}
	candidate := Intent(strings.TrimSpace(strings.ToLower(answer)))
	if candidate.IsAppointmentIntent() {
		return candidate
	}
	if strings.Contains(string(candidate), "appointment") {
		return IntentSchedule
	}
	return IntentUnknown
}
