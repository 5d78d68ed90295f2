package conversation

import "strings"

// Stage is the current phase of the booking state machine for a conversation.
type Stage string

const (
	// StageGreeting is the initial stage for every new conversation.
	StageGreeting Stage = "GREETING"
	// StageBooking collects patient details one field at a time.
	StageBooking Stage = "BOOKING_APPOINTMENT"
	// StageAnswering handles a side question before resuming the prior stage.
	StageAnswering Stage = "ANSWERING_QUESTION"
	// StageClosing marks a confirmed booking. Terminal by convention.
	StageClosing Stage = "CLOSING"
)

// ParseStage validates a generator-provided stage value. Unknown values are
// rejected so a bad extraction can never corrupt the persisted enum.
func ParseStage(s string) (Stage, bool) {
	switch Stage(strings.TrimSpace(s)) {
	case StageGreeting:
		return StageGreeting, true
	case StageBooking:
		return StageBooking, true
	case StageAnswering:
		return StageAnswering, true
	case StageClosing:
		return StageClosing, true
	default:
		return "", false
	}
}

// AgentType identifies which assistant variant owns a conversation. Message
// history is scoped by agent type so the patient and clinical assistants
// never see each other's turns.
type AgentType string

const (
	AgentPatient  AgentType = "patient"
	AgentClinical AgentType = "clinical"
)

// Message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// resolveStage decides the stage a turn should land on. Invalid or absent
// proposals leave the stage unchanged, except while answering a side
// question, where the recorded resume stage is restored so returning to the
// booking flow does not depend on the generator's recall.
func resolveStage(current Stage, resume *Stage, proposed string) (Stage, *Stage) {
	next, ok := ParseStage(proposed)
	if !ok {
		if current == StageAnswering {
			if resume != nil {
				return *resume, nil
			}
			return StageGreeting, nil
		}
		return current, resume
	}

	if next == StageAnswering {
		if current != StageAnswering {
			prior := current
			return next, &prior
		}
		return next, resume
	}
	return next, nil
}
