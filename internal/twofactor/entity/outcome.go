package entity

// Outcome classifies how a check or verification ended. It is attached to
// metrics and audit events.
type Outcome int8

const (
	OutcomeUnknown Outcome = iota
	// OutcomeNotRequired means no second factor is enforced for this attempt.
	OutcomeNotRequired
	// OutcomeWhitelisted means the source address bypassed the second factor.
	OutcomeWhitelisted
	// OutcomeChallenge means a code must be submitted.
	OutcomeChallenge
	// OutcomeBlocked means the source address is locked out.
	OutcomeBlocked
	// OutcomeSuccess means the submitted code was accepted.
	OutcomeSuccess
	// OutcomeFailure means the submitted code was rejected.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotRequired:
		return "not_required"
	case OutcomeWhitelisted:
		return "whitelisted"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}
