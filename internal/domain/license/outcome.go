package license

// Outcome is the business result of an Activate or Validate call. Outcomes
// are expected states reported to the caller, not errors.
type Outcome string

const (
	OutcomeNotFound              Outcome = "not_found"
	OutcomeDeactivated           Outcome = "deactivated"
	OutcomeExpired               Outcome = "expired"
	OutcomeAlreadyBoundElsewhere Outcome = "already_bound_elsewhere"
	OutcomeAlreadyBoundHere      Outcome = "already_bound_here"
	OutcomeActivated             Outcome = "activated"
	OutcomeNotActivated          Outcome = "not_activated"
	OutcomeBoundElsewhere        Outcome = "bound_elsewhere"
	OutcomeValid                 Outcome = "valid"
)

var outcomeMessages = map[Outcome]string{
	OutcomeNotFound:              "License not found",
	OutcomeDeactivated:           "License has been deactivated",
	OutcomeExpired:               "License has expired",
	OutcomeAlreadyBoundElsewhere: "License is already activated on another device",
	OutcomeAlreadyBoundHere:      "License is already activated on this device",
	OutcomeActivated:             "License activated",
	OutcomeNotActivated:          "License has not been activated yet",
	OutcomeBoundElsewhere:        "License is bound to another device",
	OutcomeValid:                 "License is valid",
}

// Valid reports whether the outcome grants access to the calling device.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeActivated, OutcomeAlreadyBoundHere, OutcomeValid:
		return true
	default:
		return false
	}
}

func (o Outcome) Message() string {
	if msg, ok := outcomeMessages[o]; ok {
		return msg
	}
	return string(o)
}
