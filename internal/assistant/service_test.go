package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appointly/assistant/internal/memory"
)

// newTestService wires the full turn pipeline over in-process collaborators
// and a fixed clock.
func newTestService(store *fakeStore, llm ChatCompleter) (*Service, *memory.InMemoryStore) {
	mem := memory.NewInMemoryStore()
	dialog := NewDialog(store, nil)
	dialog.now = fixedClock(refWednesday)
	extractor := NewFallbackChain(&PatternExtractor{Now: fixedClock(refWednesday)})
	knowledge := NewKnowledgeEngine(llm, mem, time.Second, nil)
	svc := NewService(dialog, extractor, knowledge, llm, mem, nil, nil)
	svc.now = fixedClock(refWednesday)
	return svc, mem
}

func turn(t *testing.T, svc *Service, text string, c *Context) TurnResponse {
	t.Helper()
	return svc.ProcessTurn(context.Background(), TurnRequest{
		Text:      text,
		Context:   c,
		SessionID: "s-1",
	})
}

// Starting at (schedule, init) with no slots, four short replies walk the
// machine to completion with exactly one persisted appointment.
func TestServiceScheduleFlow(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, nil)
	c := &Context{Intent: IntentSchedule, Phase: PhaseInit}

	resp := turn(t, svc, "John", c)
	assert.Equal(t, "What day would you like to schedule with John?", resp.Response)
	assert.Equal(t, "John", c.Person)
	assert.Equal(t, PhaseAskingDate, c.Phase)

	resp = turn(t, svc, "tomorrow", c)
	assert.Contains(t, resp.Response, "What time")
	assert.Equal(t, "2025-06-12", c.Date)
	assert.Equal(t, PhaseAskingTime, c.Phase)

	resp = turn(t, svc, "3pm", c)
	assert.Contains(t, resp.Response, "Is that correct?")
	assert.Equal(t, "15:00", c.Time)
	assert.Equal(t, "John", c.Person, "a time reply must not clobber the confirmed person")
	assert.Equal(t, PhaseConfirming, c.Phase)

	resp = turn(t, svc, "yes", c)
	assert.Equal(t, "Great! Your appointment with John has been scheduled for Thursday, June 12, 2025 at 3:00 PM.", resp.Response)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, PhaseCompleted, c.Phase)

	require.Len(t, store.adds, 1)
	assert.Equal(t, Appointment{Person: "John", Date: "2025-06-12", Time: "15:00"}, store.adds[0])
}

// Once a person is confirmed past the asking phase, noisy tokens like
// "available" in later replies must not overwrite it.
func TestServiceConfirmedPersonGuard(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, nil)
	c := &Context{
		Intent: IntentSchedule, Phase: PhaseAskingTime,
		Person: "Dr. Smith", Date: "2025-06-12",
	}

	resp := turn(t, svc, "anytime available works for me", c)
	assert.Equal(t, "Dr. Smith", c.Person)
	assert.Equal(t, FirstAvailable, c.Time)
	assert.Equal(t, PhaseConfirming, c.Phase)
	assert.Contains(t, resp.Response, "Dr. Smith")
}

// Picking an offered time while availability is on screen crosses over to
// the scheduling confirmation.
func TestServiceAvailabilityCrossIntent(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, nil)
	c := &Context{
		Intent: IntentAvailability, Phase: PhaseShowingAvailability,
		Person: "Dr. Smith", Date: "2025-06-10",
	}

	resp := turn(t, svc, "2:00 pm works", c)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, PhaseConfirming, c.Phase)
	assert.Equal(t, "14:00", c.Time)
	assert.Contains(t, resp.Response, "Is that correct?")
}

func TestServiceEmptyMessage(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)

	resp := turn(t, svc, "   ", &Context{})
	assert.Equal(t, "I didn't receive any message. How can I help you?", resp.Response)
}

func TestServiceNilContext(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)

	resp := svc.ProcessTurn(context.Background(), TurnRequest{Text: "schedule an appointment"})
	require.NotNil(t, resp.Context)
	assert.Equal(t, IntentSchedule, resp.Context.Intent)
	assert.Equal(t, PhaseAskingPerson, resp.Context.Phase)
}

// An opener made of scheduling vocabulary must never be read as a name.
func TestServiceOpenerNotTakenAsName(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)

	c := &Context{}
	resp := turn(t, svc, "schedule an appointment", c)
	assert.Equal(t, "Who would you like to schedule an appointment with?", resp.Response)
	assert.Empty(t, c.Person)
	assert.Equal(t, PhaseAskingPerson, c.Phase)

	c = &Context{}
	resp = turn(t, svc, "cancel my appointment", c)
	assert.Equal(t, "Whose appointment would you like to cancel?", resp.Response)
	assert.Empty(t, c.Person)
	assert.Equal(t, PhaseAskingPersonCancel, c.Phase)
}

// While the person question is open, a short two-word reply of plausible
// name tokens is accepted whole, but scheduling vocabulary still is not.
func TestServiceShortReplyAsName(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)

	c := &Context{Intent: IntentSchedule, Phase: PhaseAskingPerson}
	turn(t, svc, "book an appointment", c)
	assert.Empty(t, c.Person)
	assert.Equal(t, PhaseAskingPerson, c.Phase)

	resp := turn(t, svc, "Smith", c)
	assert.Equal(t, "Smith", c.Person)
	assert.Equal(t, "What day would you like to schedule with Smith?", resp.Response)
}

// A knowledge question mid-flow is answered without disturbing the
// appointment context.
func TestServiceKnowledgeMidFlow(t *testing.T) {
	llm := &stubCompleter{reply: "Paris is the capital of France."}
	svc, _ := newTestService(&fakeStore{}, llm)
	c := &Context{
		Intent: IntentSchedule, Phase: PhaseAskingDate,
		Person: "John",
	}

	resp := turn(t, svc, "what is the capital of France?", c)
	assert.Equal(t, "Paris is the capital of France.", resp.Response)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, PhaseAskingDate, c.Phase)
	assert.Equal(t, "John", c.Person)
}

// An explicit availability switch mid-schedule keeps person and date but
// abandons the rest of the flow.
func TestServiceExplicitAvailabilitySwitch(t *testing.T) {
	store := &fakeStore{times: []string{"9:00 AM"}}
	svc, _ := newTestService(store, nil)
	c := &Context{
		Intent: IntentSchedule, Phase: PhaseAskingTime,
		Person: "John", Date: "2025-06-12", Time: "15:00",
	}

	resp := turn(t, svc, "check availability for John", c)
	assert.Equal(t, IntentAvailability, c.Intent)
	assert.Equal(t, "John", c.Person)
	assert.Equal(t, "2025-06-12", c.Date)
	assert.Equal(t, PhaseShowingAvailability, c.Phase)
	assert.Contains(t, resp.Response, "John is available on")
}

// "I need to see a doctor" is a scheduling request with an implied person.
func TestServiceDoctorPhrase(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)
	c := &Context{}

	resp := turn(t, svc, "I need to see a doctor", c)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, "Doctor", c.Person)
	assert.Equal(t, "What day would you like to schedule with Doctor?", resp.Response)
}

// A spent context starts the next turn fresh.
func TestServiceCompletedContextResets(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)
	c := &Context{
		Intent: IntentSchedule, Phase: PhaseCompleted,
		Person: "John", Date: "2025-06-12", Time: "15:00",
		ReadyForNewTopic: true,
	}

	resp := turn(t, svc, "I want to book an appointment", c)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, PhaseAskingPerson, c.Phase)
	assert.Empty(t, c.Person)
	assert.Equal(t, "Who would you like to schedule an appointment with?", resp.Response)
}

// "book another appointment" starts clean even mid-flow.
func TestServiceNewAppointmentKeyword(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)
	c := &Context{
		Intent: IntentSchedule, Phase: PhaseConfirming,
		Person: "John", Date: "2025-06-12", Time: "15:00",
	}

	resp := turn(t, svc, "I'd like to book another appointment with Sarah", c)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, "Sarah", c.Person)
	assert.Empty(t, c.Date)
	assert.Empty(t, c.Time)
	assert.Equal(t, "What day would you like to schedule with Sarah?", resp.Response)
}

// A bare date follow-up resumes the most recent appointment intent from
// session memory.
func TestServicePreviousIntentRecall(t *testing.T) {
	svc, mem := newTestService(&fakeStore{}, nil)
	err := mem.RecordTurn(context.Background(), "s-1", memory.Turn{
		User: "schedule an appointment", AI: "Who with?",
		Intent: string(IntentSchedule), At: refWednesday,
	})
	require.NoError(t, err)

	c := &Context{}
	resp := turn(t, svc, "tomorrow at 3pm", c)
	assert.Equal(t, IntentSchedule, c.Intent)
	assert.Equal(t, "2025-06-12", c.Date)
	assert.Equal(t, "15:00", c.Time)
	assert.Equal(t, "Who would you like to schedule an appointment with?", resp.Response)
}

// newTestServiceWithAI is newTestService with a recording layer behind the
// pattern extractor, standing in for the AI fallback.
func newTestServiceWithAI(store *fakeStore, ai *stubExtractor) *Service {
	mem := memory.NewInMemoryStore()
	dialog := NewDialog(store, nil)
	dialog.now = fixedClock(refWednesday)
	extractor := NewFallbackChain(&PatternExtractor{Now: fixedClock(refWednesday)}, ai)
	knowledge := NewKnowledgeEngine(nil, mem, time.Second, nil)
	svc := NewService(dialog, extractor, knowledge, nil, mem, nil, nil)
	svc.now = fixedClock(refWednesday)
	return svc
}

// A wordy time reply in the cancel flow reaches the fallback layer asking
// for exactly the time slot.
func TestServiceCancelTimeReachesFallback(t *testing.T) {
	ai := &stubExtractor{values: map[string]string{SlotTime: "15:30"}}
	svc := newTestServiceWithAI(&fakeStore{}, ai)
	c := &Context{
		Intent: IntentCancel, Phase: PhaseAskingTimeCancel,
		Person: "John", Date: "2025-06-12",
	}

	resp := turn(t, svc, "half past three in the afternoon", c)
	require.Len(t, ai.asked, 1)
	assert.Equal(t, []string{SlotTime}, ai.asked[0])
	assert.Equal(t, "15:30", c.Time)
	assert.Equal(t, PhaseConfirmingCancel, c.Phase)
	assert.Contains(t, resp.Response, "Is that correct?")
}

// A wordy date reply in the availability flow reaches the fallback layer
// asking for exactly the date slot.
func TestServiceAvailabilityDateReachesFallback(t *testing.T) {
	ai := &stubExtractor{values: map[string]string{SlotDate: "2025-06-20"}}
	svc := newTestServiceWithAI(&fakeStore{times: []string{"9:00 AM"}}, ai)
	c := &Context{
		Intent: IntentAvailability, Phase: PhaseAskingDateCheck,
		Person: "Dr. Smith",
	}

	resp := turn(t, svc, "the day after my birthday", c)
	require.Len(t, ai.asked, 1)
	assert.Equal(t, []string{SlotDate}, ai.asked[0])
	assert.Equal(t, "2025-06-20", c.Date)
	assert.Equal(t, PhaseShowingAvailability, c.Phase)
	assert.Contains(t, resp.Response, "Dr. Smith is available on")
}

func TestServiceSummaryRequest(t *testing.T) {
	svc, mem := newTestService(&fakeStore{}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, mem.RecordTurn(ctx, "s-1", memory.Turn{User: "u", AI: "a", At: refWednesday}))
	}

	resp := turn(t, svc, "can you give me a summary of our chat", &Context{})
	assert.Equal(t, "This conversation included 3 exchanges about appointments and scheduling.", resp.Response)
}

func TestServiceRecordsTurns(t *testing.T) {
	svc, mem := newTestService(&fakeStore{}, nil)
	c := &Context{Intent: IntentSchedule, Phase: PhaseInit}

	turn(t, svc, "John", c)
	turn(t, svc, "tomorrow", c)

	turns, err := mem.Turns(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "John", turns[0].User)
	assert.Equal(t, string(IntentSchedule), turns[0].Intent)
}

func TestServiceSpeechOutputStripsMarkdown(t *testing.T) {
	llm := &stubCompleter{reply: "**Paris** is the capital of *France*."}
	svc, _ := newTestService(&fakeStore{}, llm)

	resp := svc.ProcessTurn(context.Background(), TurnRequest{
		Text:     "what is the capital of France?",
		Context:  &Context{},
		IsSpeech: true,
	})
	assert.Equal(t, "Paris is the capital of France.", resp.Response)
}
