package assistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/appointly/assistant/internal/observability/metrics"
	"github.com/appointly/assistant/pkg/logging"
)

// Appointment is the record shape exchanged with the persistence
// collaborator.
type Appointment struct {
	Person string `json:"person"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

// AppointmentStore is the narrow persistence contract consumed by the
// finalization steps. The core never depends on schema details beyond these
// operations' success/failure signal.
type AppointmentStore interface {
	Add(ctx context.Context, person, date, timeStr string) error
	Cancel(ctx context.Context, person, date, timeStr string) error
	CheckAvailability(ctx context.Context, person, date, timeStr string) (bool, error)
	AvailableTimes(ctx context.Context, person, date string) ([]string, error)
	List(ctx context.Context, person, date string) ([]Appointment, error)
}

var affirmativePattern = regexp.MustCompile(`\b(yes|correct|right|ok|okay|sure|yeah|yep|do that|please)\b`)

// IsAffirmative reports whether a confirmation reply accepts the pending
// action.
func IsAffirmative(text string) bool {
	return affirmativePattern.MatchString(strings.ToLower(text))
}

var cancelCurrentPhrases = []string{
	"cancel this appointment",
	"cancel the current appointment",
	"cancel that appointment",
	"cancel it",
	"don't want this appointment",
	"remove this appointment",
}

// fallbackAvailableTimes mirrors what the assistant offers when the
// availability table has no windows for the requested person/date.
var fallbackAvailableTimes = []string{"9:00 AM", "10:30 AM", "2:00 PM", "3:30 PM", "4:45 PM"}

type stateKey struct {
	intent Intent
	phase  Phase
}

// phaseHandler advances one (intent, phase) state: it mutates the context
// and returns the next system utterance.
type phaseHandler func(ctx context.Context, utterance string, c *Context) (string, error)

// Dialog is the appointment state machine. States are (intent, phase)
// pairs held in an explicit transition table so every transition is
// individually testable.
type Dialog struct {
	store  AppointmentStore
	logger *logging.Logger
	now    func() time.Time
	table  map[stateKey]phaseHandler

	// Metrics is optional; when set, persistence failures are counted.
	Metrics *metrics.AssistantMetrics
}

// NewDialog builds the state machine over the given persistence
// collaborator.
func NewDialog(store AppointmentStore, logger *logging.Logger) *Dialog {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dialog{
		store:  store,
		logger: logger.Component("dialog"),
		now:    time.Now,
	}
	d.table = map[stateKey]phaseHandler{
		{IntentSchedule, PhaseAskingPerson}: d.askingPerson,
		{IntentSchedule, PhaseAskingDate}:   d.askingDate,
		{IntentSchedule, PhaseAskingTime}:   d.askingTime,
		{IntentSchedule, PhaseConfirming}:   d.confirming,
		{IntentSchedule, PhaseAskingChange}: d.askingChange,

		{IntentCancel, PhaseAskingPersonCancel}: d.askingPersonCancel,
		{IntentCancel, PhaseAskingDateCancel}:   d.askingDateCancel,
		{IntentCancel, PhaseAskingTimeCancel}:   d.askingTimeCancel,
		{IntentCancel, PhaseConfirmingCancel}:   d.confirmingCancel,
		{IntentCancel, PhaseAskingChangeCancel}: d.askingChange,

		{IntentAvailability, PhaseAskingPersonCheck}:   d.askingPersonCheck,
		{IntentAvailability, PhaseAskingDateCheck}:     d.askingDateCheck,
		{IntentAvailability, PhaseShowingAvailability}: d.showingAvailability,
	}
	return d
}

// Next advances the machine one turn. The context has already been through
// slot merging; Next only decides the question, confirmation or completion.
func (d *Dialog) Next(ctx context.Context, utterance string, c *Context) (string, error) {
	// An injected stale or foreign phase resets to init rather than crash.
	if !c.PhaseValid() {
		d.logger.Warn("resetting invalid phase", "intent", c.Intent, "phase", c.Phase)
		c.Phase = PhaseInit
	}

	// Flexible-time shortcut while the machine is asking for a time.
	if (c.Phase == PhaseAskingTime || c.Phase == PhaseAskingTimeCancel) &&
		c.Time == "" && DetectFlexibleTime(utterance) {
		c.Time = FirstAvailable
	}

	// Same-turn cancellation of the appointment under discussion skips
	// straight to the cancel confirmation.
	if c.Person != "" && c.Date != "" && containsAny(utterance, cancelCurrentPhrases) {
		c.Intent = IntentCancel
		c.Phase = PhaseConfirmingCancel
		c.PreviousPerson = c.Person
		return d.confirmCancelMessage(c), nil
	}

	if c.Phase == "" || c.Phase == PhaseInit {
		return d.initPhase(ctx, c)
	}

	handler, ok := d.table[stateKey{c.Intent, c.Phase}]
	if !ok {
		c.Phase = PhaseInit
		return "I'm not sure what you want to do with your appointment. Can you please be more specific?", nil
	}
	return handler(ctx, utterance, c)
}

// initPhase routes a fresh flow: ask for the first missing slot or jump
// straight to confirmation when everything arrived in one utterance.
func (d *Dialog) initPhase(ctx context.Context, c *Context) (string, error) {
	switch c.Intent {
	case IntentSchedule:
		return d.nextScheduleQuestion(c), nil
	case IntentCancel:
		return d.nextCancelQuestion(c), nil
	case IntentAvailability:
		return d.nextAvailabilityStep(ctx, c)
	case IntentList:
		return d.listAppointments(ctx, c)
	}
	return "I'm not sure what you want to do with your appointment. Can you please be more specific?", nil
}

func (d *Dialog) nextScheduleQuestion(c *Context) string {
	switch {
	case c.Person == "":
		c.Phase = PhaseAskingPerson
		return "Who would you like to schedule an appointment with?"
	case c.Date == "":
		c.Phase = PhaseAskingDate
		return fmt.Sprintf("What day would you like to schedule with %s?", c.Person)
	case c.Time == "":
		c.Phase = PhaseAskingTime
		return fmt.Sprintf("What time would you like for your appointment with %s on %s?",
			c.Person, FormatDisplayDate(c.Date))
	default:
		c.Phase = PhaseConfirming
		return d.confirmScheduleMessage(c)
	}
}

func (d *Dialog) nextCancelQuestion(c *Context) string {
	switch {
	case c.Person == "":
		c.Phase = PhaseAskingPersonCancel
		return "Whose appointment would you like to cancel?"
	case c.Date == "":
		c.Phase = PhaseAskingDateCancel
		return fmt.Sprintf("On what date is the appointment with %s that you want to cancel?", c.Person)
	case c.Time == "":
		c.Phase = PhaseAskingTimeCancel
		return fmt.Sprintf("At what time is the appointment with %s on %s that you want to cancel?",
			c.Person, FormatDisplayDate(c.Date))
	default:
		c.Phase = PhaseConfirmingCancel
		c.PreviousPerson = c.Person
		return d.confirmCancelMessage(c)
	}
}

func (d *Dialog) nextAvailabilityStep(ctx context.Context, c *Context) (string, error) {
	switch {
	case c.Person == "":
		c.Phase = PhaseAskingPersonCheck
		return "Whose availability would you like to check?", nil
	case c.Date == "":
		c.Phase = PhaseAskingDateCheck
		return fmt.Sprintf("For which date would you like to check %s's availability?", c.Person), nil
	default:
		return d.showAvailability(ctx, c)
	}
}

func (d *Dialog) askingPerson(_ context.Context, _ string, c *Context) (string, error) {
	if c.Person == "" {
		return "I need to know who you want to schedule with. Please provide a name.", nil
	}
	return d.nextScheduleQuestion(c), nil
}

func (d *Dialog) askingDate(_ context.Context, _ string, c *Context) (string, error) {
	if c.Date == "" {
		return fmt.Sprintf("I need a date for your appointment with %s. When would you like to schedule it?", c.Person), nil
	}
	return d.nextScheduleQuestion(c), nil
}

func (d *Dialog) askingTime(_ context.Context, _ string, c *Context) (string, error) {
	if c.Time == "" {
		return fmt.Sprintf("What time would you like for your appointment with %s on %s?",
			c.Person, FormatDisplayDate(c.Date)), nil
	}
	return d.nextScheduleQuestion(c), nil
}

func (d *Dialog) confirming(ctx context.Context, utterance string, c *Context) (string, error) {
	if !IsAffirmative(utterance) {
		c.Phase = PhaseAskingChange
		return "What would you like to change about the appointment?", nil
	}
	if c.Person == "" || c.Date == "" || c.Time == "" {
		c.Phase = PhaseInit
		return "I'm missing some information. Let's start over. Who would you like to schedule with?", nil
	}

	// A concrete slot is verified before booking; the first-available
	// sentinel is resolved by the store itself. A failed check only logs:
	// the store's own validation still applies at Add.
	if c.Time != FirstAvailable {
		open, err := d.store.CheckAvailability(ctx, c.Person, c.Date, c.Time)
		if err != nil {
			d.logger.Warn("availability check failed, proceeding with booking", "error", err)
		} else if !open {
			requested := FormatDisplayTime(c.Time)
			c.Time = ""
			c.Phase = PhaseAskingTime
			reply := fmt.Sprintf("I'm sorry, %s is not available on %s at %s.",
				c.Person, FormatDisplayDate(c.Date), requested)
			if times, err := d.store.AvailableTimes(ctx, c.Person, c.Date); err == nil && len(times) > 0 {
				reply += fmt.Sprintf(" Available times are: %s.", strings.Join(times, ", "))
			}
			return reply + " What time would work instead?", nil
		}
	}

	if err := d.store.Add(ctx, c.Person, c.Date, c.Time); err != nil {
		// The phase is deliberately left at confirming: the user can retry
		// on the next turn with no state corruption.
		d.logger.Error("failed to save appointment", "error", err, "person", c.Person)
		d.Metrics.ObservePersistenceError("add")
		return "I'm sorry, there was an error scheduling your appointment. Please try again.", nil
	}

	person, date, timeStr := c.Person, c.Date, c.Time
	c.MarkCompleted(d.now())
	return fmt.Sprintf("Great! Your appointment with %s has been scheduled for %s at %s.",
		person, FormatDisplayDate(date), FormatDisplayTime(timeStr)), nil
}

// askingChange serves both asking_change and asking_change_cancel: the reply
// names which single slot to clear and re-ask.
func (d *Dialog) askingChange(_ context.Context, utterance string, c *Context) (string, error) {
	lower := strings.ToLower(utterance)
	cancelling := c.Intent == IntentCancel

	switch {
	case strings.Contains(lower, "person") || strings.Contains(lower, "who") || strings.Contains(lower, "name"):
		c.Person = ""
		if cancelling {
			c.Phase = PhaseAskingPersonCancel
			return "Whose appointment would you like to cancel?", nil
		}
		c.Phase = PhaseAskingPerson
		return "Who would you like to schedule with instead?", nil

	case strings.Contains(lower, "date") || strings.Contains(lower, "day") || strings.Contains(lower, "when"):
		c.Date = ""
		if cancelling {
			c.Phase = PhaseAskingDateCancel
		} else {
			c.Phase = PhaseAskingDate
		}
		return "What day would you prefer instead?", nil

	case strings.Contains(lower, "time") || strings.Contains(lower, "hour"):
		c.Time = ""
		if cancelling {
			c.Phase = PhaseAskingTimeCancel
		} else {
			c.Phase = PhaseAskingTime
		}
		return "What time would you prefer instead?", nil
	}

	c.Phase = PhaseInit
	return "Let's start over. What would you like to do?", nil
}

func (d *Dialog) askingPersonCancel(_ context.Context, _ string, c *Context) (string, error) {
	if c.Person == "" {
		return "I need to know whose appointment you want to cancel. Please provide a name.", nil
	}
	return d.nextCancelQuestion(c), nil
}

func (d *Dialog) askingDateCancel(_ context.Context, _ string, c *Context) (string, error) {
	if c.Date == "" {
		return fmt.Sprintf("I need to know the date of the appointment with %s that you want to cancel.", c.Person), nil
	}
	return d.nextCancelQuestion(c), nil
}

func (d *Dialog) askingTimeCancel(_ context.Context, _ string, c *Context) (string, error) {
	if c.Time == "" {
		return fmt.Sprintf("At what time is the appointment with %s on %s that you want to cancel?",
			c.Person, FormatDisplayDate(c.Date)), nil
	}
	return d.nextCancelQuestion(c), nil
}

func (d *Dialog) confirmingCancel(ctx context.Context, utterance string, c *Context) (string, error) {
	if !IsAffirmative(utterance) {
		c.Phase = PhaseAskingChangeCancel
		return "What would you like to change about the cancellation?", nil
	}

	// "do that" replies can leak "That" into the person slot; restore the
	// backed-up name before finalizing.
	person := c.Person
	if strings.EqualFold(person, "that") && c.PreviousPerson != "" {
		person = c.PreviousPerson
	}

	if err := d.store.Cancel(ctx, person, c.Date, c.Time); err != nil {
		d.logger.Error("failed to cancel appointment", "error", err, "person", person)
		d.Metrics.ObservePersistenceError("cancel")
		return "I'm sorry, there was an error cancelling your appointment. Please try again.", nil
	}

	date, timeStr := c.Date, c.Time
	c.Person = person
	c.MarkCompleted(d.now())
	return fmt.Sprintf("I've cancelled your appointment with %s on %s at %s. Is there anything else I can help you with?",
		person, FormatDisplayDate(date), displayTimeOrDefault(timeStr)), nil
}

func (d *Dialog) askingPersonCheck(ctx context.Context, _ string, c *Context) (string, error) {
	if c.Person == "" {
		return "I need to know whose availability you want to check. Please provide a name.", nil
	}
	return d.nextAvailabilityStep(ctx, c)
}

func (d *Dialog) askingDateCheck(ctx context.Context, _ string, c *Context) (string, error) {
	if c.Date == "" {
		return fmt.Sprintf("I need a date to check availability for %s. What day are you interested in?", c.Person), nil
	}
	return d.nextAvailabilityStep(ctx, c)
}

// showingAvailability is the one legal cross-intent transition: a reply
// choosing one of the offered times rewrites the flow into scheduling at
// the confirmation step.
func (d *Dialog) showingAvailability(_ context.Context, utterance string, c *Context) (string, error) {
	if c.Time == "" {
		c.Time = extractTime(utterance)
	}
	if c.Time == "" {
		return "I didn't understand the time you want. Please specify a time like '3:30 PM'.", nil
	}
	c.Intent = IntentSchedule
	c.Phase = PhaseConfirming
	return d.confirmScheduleMessage(c), nil
}

func (d *Dialog) showAvailability(ctx context.Context, c *Context) (string, error) {
	c.Phase = PhaseShowingAvailability

	times, err := d.store.AvailableTimes(ctx, c.Person, c.Date)
	if err != nil {
		d.logger.Warn("availability lookup failed, using default slots", "error", err)
		times = nil
	}
	if len(times) == 0 {
		times = fallbackAvailableTimes
	}
	return fmt.Sprintf("%s is available on %s at the following times: %s",
		c.Person, FormatDisplayDate(c.Date), strings.Join(times, ", ")), nil
}

// listAppointments is single-shot: it answers and completes in one turn.
func (d *Dialog) listAppointments(ctx context.Context, c *Context) (string, error) {
	appts, err := d.store.List(ctx, c.Person, c.Date)
	if err != nil {
		d.logger.Error("failed to list appointments", "error", err)
		return "I'm sorry, I couldn't look up your appointments right now. Please try again.", nil
	}

	defer c.MarkCompleted(d.now())
	if len(appts) == 0 {
		return "You don't have any appointments scheduled.", nil
	}

	var b strings.Builder
	b.WriteString("You have the following appointments scheduled:")
	for _, a := range appts {
		fmt.Fprintf(&b, "\n- %s on %s at %s", a.Person, FormatDisplayDate(a.Date), FormatDisplayTime(a.Time))
	}
	return b.String(), nil
}

func (d *Dialog) confirmScheduleMessage(c *Context) string {
	return fmt.Sprintf("I'll schedule your appointment with %s on %s at %s. Is that correct?",
		c.Person, FormatDisplayDate(c.Date), FormatDisplayTime(c.Time))
}

func (d *Dialog) confirmCancelMessage(c *Context) string {
	return fmt.Sprintf("I'll cancel your appointment with %s on %s at %s. Is that correct?",
		c.Person, FormatDisplayDate(c.Date), displayTimeOrDefault(c.Time))
}

func displayTimeOrDefault(timeStr string) string {
	if timeStr == "" {
		return "the scheduled time"
	}
	return FormatDisplayTime(timeStr)
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
