package assistant

import (
	"regexp"
	"strings"
)

// Intent classification uses ordered pattern families with fixed precedence.
// Knowledge questions win over everything: a "what is X" phrasing routes to
// open-domain QA even mid-appointment-flow. Availability and cancellation are
// checked before scheduling because their phrasing frequently contains
// scheduling words ("book", "appointment") and must not be misrouted.

var knowledgePatterns = compileAll(
	`what is`,
	`what are`,
	`who is`,
	`who are`,
	`how does`,
	`how do`,
	`explain`,
	`tell me about`,
	`when was`,
	`when is`,
	`where is`,
	`where are`,
	`why is`,
	`why are`,
	`define`,
	`definition`,
	`defination`, // common misspelling
	`meaning of`,
	`what does`,
	`tell me more`,
	`can you explain`,
)

var availabilityPatterns = compileAll(
	`check availability`,
	`check availibility`, // common misspelling
	`when .* available`,
	`what times are available`,
	`available times`,
	`is .* available`,
	`can .* meet`,
	`availability of`,
	`availibility of`,
	`when can .* meet`,
	`check when`,
	`not schedule .* check`,
)

var cancelPatterns = compileAll(
	`cancel an? appointment`,
	`cancel .* meeting`,
	`cancel .* with`,
	`remove an? appointment`,
	`delete an? appointment`,
	`wanto cancel`,
	`want to cancel`,
	`need to cancel`,
	`don'?t want the appointment`,
)

var schedulePatterns = compileAll(
	`schedule an? appointment`,
	`book an? appointment`,
	`make an? appointment`,
	`set up an? appointment`,
	`create an? appointment`,
	`schedule a meeting`,
	`schedule .* with`,
	`book .* with`,
	`make .* with`,
	`schedule .* for`,
	`book .* for`,
	`make .* for`,
)

var listPatterns = compileAll(
	`list appointments`,
	`show appointments`,
	`what appointments`,
	`my appointments`,
	`my schedule`,
	`view .* appointments`,
)

// intentFamilies holds the precedence order: first family with any match wins.
var intentFamilies = []struct {
	intent   Intent
	patterns []*regexp.Regexp
}{
	{IntentKnowledge, knowledgePatterns},
	{IntentAvailability, availabilityPatterns},
	{IntentCancel, cancelPatterns},
	{IntentSchedule, schedulePatterns},
	{IntentList, listPatterns},
}

// ClassifyIntent maps an utterance to an intent label, or IntentUnknown when
// no pattern family matches.
func ClassifyIntent(text string) Intent {
	text = strings.ToLower(text)
	for _, family := range intentFamilies {
		for _, p := range family.patterns {
			if p.MatchString(text) {
				return family.intent
			}
		}
	}
	return IntentUnknown
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
