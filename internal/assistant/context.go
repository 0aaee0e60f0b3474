package assistant

import "time"

// Intent is the classified purpose of a user's utterance.
type Intent string

const (
	IntentSchedule     Intent = "schedule_appointment"
	IntentCancel       Intent = "cancel_appointment"
	IntentAvailability Intent = "check_availability"
	IntentList         Intent = "list_appointments"
	IntentKnowledge    Intent = "knowledge"
	IntentUnknown      Intent = "unknown"
)

// IsAppointmentIntent reports whether the intent drives the appointment
// state machine (as opposed to knowledge/unknown).
func (i Intent) IsAppointmentIntent() bool {
	switch i {
	case IntentSchedule, IntentCancel, IntentAvailability, IntentList:
		return true
	}
	return false
}

// Phase is the dialogue machine's position within an intent's question
// sequence.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseCompleted Phase = "completed"

	// schedule_appointment track
	PhaseAskingPerson Phase = "asking_person"
	PhaseAskingDate   Phase = "asking_date"
	PhaseAskingTime   Phase = "asking_time"
	PhaseConfirming   Phase = "confirming"
	PhaseAskingChange Phase = "asking_change"

	// cancel_appointment track
	PhaseAskingPersonCancel Phase = "asking_person_cancel"
	PhaseAskingDateCancel   Phase = "asking_date_cancel"
	PhaseAskingTimeCancel   Phase = "asking_time_cancel"
	PhaseConfirmingCancel   Phase = "confirming_cancel"
	PhaseAskingChangeCancel Phase = "asking_change_cancel"

	// check_availability track
	PhaseAskingPersonCheck   Phase = "asking_person_check"
	PhaseAskingDateCheck     Phase = "asking_date_check"
	PhaseShowingAvailability Phase = "showing_availability"
)

// validPhases enumerates the phase track per intent. init and completed are
// legal everywhere.
var validPhases = map[Intent][]Phase{
	IntentSchedule: {
		PhaseAskingPerson, PhaseAskingDate, PhaseAskingTime,
		PhaseConfirming, PhaseAskingChange,
	},
	IntentCancel: {
		PhaseAskingPersonCancel, PhaseAskingDateCancel, PhaseAskingTimeCancel,
		PhaseConfirmingCancel, PhaseAskingChangeCancel,
	},
	IntentAvailability: {
		PhaseAskingPersonCheck, PhaseAskingDateCheck, PhaseShowingAvailability,
	},
	IntentList: {},
}

// personAskingPhases are the only phases in which a freshly extracted person
// may replace an already-confirmed one.
var personAskingPhases = map[Phase]bool{
	PhaseInit:               true,
	PhaseAskingPerson:       true,
	PhaseAskingPersonCancel: true,
	PhaseAskingPersonCheck:  true,
}

// Context carries the accumulated dialogue state for one logical session.
// It round-trips through the transport layer unchanged, so field names are
// part of the API contract.
type Context struct {
	Intent Intent `json:"intent,omitempty"`
	Phase  Phase  `json:"phase,omitempty"`

	Person string `json:"person,omitempty"`
	Date   string `json:"date,omitempty"` // YYYY-MM-DD
	Time   string `json:"time,omitempty"` // HH:MM 24-hour, or "first available"

	// PreviousPerson backs up a confirmed person so that a noisy reply such
	// as "do that" cannot clobber it during cancellation confirmation.
	PreviousPerson string `json:"previous_person,omitempty"`

	CompletedAt      string `json:"appointment_completed_at,omitempty"`
	ReadyForNewTopic bool   `json:"ready_for_new_topic,omitempty"`
}

// Reset clears all state, returning the context to its first-turn shape.
func (c *Context) Reset() {
	*c = Context{}
}

// MarkCompleted stamps the context as finished so the next turn starts fresh.
func (c *Context) MarkCompleted(now time.Time) {
	c.Phase = PhaseCompleted
	c.CompletedAt = now.Format(time.RFC3339)
	c.ReadyForNewTopic = true
}

// PhaseValid reports whether the current phase belongs to the current
// intent's track.
func (c *Context) PhaseValid() bool {
	if c.Phase == "" || c.Phase == PhaseInit || c.Phase == PhaseCompleted {
		return true
	}
	for _, p := range validPhases[c.Intent] {
		if p == c.Phase {
			return true
		}
	}
	return false
}

// Normalize repairs a context whose phase does not belong to its intent:
// an externally injected stale or foreign phase string resets to init
// rather than crashing the state machine.
func (c *Context) Normalize() {
	if !c.PhaseValid() {
		c.Phase = PhaseInit
	}
}

// Entities is one utterance's worth of extracted slot values. Empty string
// means "not found".
type Entities struct {
	Person string
	Date   string
	Time   string
}

// Missing lists the slot names the given intent still needs, looking at both
// the fresh extraction and the accumulated context.
func (e Entities) Missing(intent Intent, c *Context) []string {
	var missing []string
	havePerson := e.Person != "" || c.Person != ""
	haveDate := e.Date != "" || c.Date != ""
	haveTime := e.Time != "" || c.Time != ""

	switch intent {
	case IntentSchedule:
		if !havePerson {
			missing = append(missing, SlotPerson)
		}
		if !haveDate {
			missing = append(missing, SlotDate)
		}
		if !haveTime {
			missing = append(missing, SlotTime)
		}
	case IntentCancel:
		if !havePerson {
			missing = append(missing, SlotPerson)
		}
		if !haveDate {
			missing = append(missing, SlotDate)
		}
		if !haveTime {
			missing = append(missing, SlotTime)
		}
	case IntentAvailability:
		if !havePerson {
			missing = append(missing, SlotPerson)
		}
		if !haveDate {
			missing = append(missing, SlotDate)
		}
	}
	return missing
}

// Slot names shared between the extractors and the AI fallback contract.
const (
	SlotPerson = "person"
	SlotDate   = "date"
	SlotTime   = "time"
)
