package report

// Outcome is the verdict attached to a recorded run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeUnstable Outcome = "unstable"
	OutcomeFailure  Outcome = "failure"
)

// OutcomeOf grades a tallied suite. Every counted item failing is a
// failure, some failing is unstable. A suite that counted nothing is a
// failure when failOnEmpty is set.
func OutcomeOf(s *Suite, failOnEmpty bool) Outcome {
	return OutcomeFor(s.TotalCount(), s.FailCount(), failOnEmpty)
}

// OutcomeFor grades root figures that were recorded without the tree.
func OutcomeFor(total, failed int, failOnEmpty bool) Outcome {
	switch {
	case total == 0 && failOnEmpty:
		return OutcomeFailure
	case total == 0:
		return OutcomeSuccess
	case failed == total:
		return OutcomeFailure
	case failed > 0:
		return OutcomeUnstable
	default:
		return OutcomeSuccess
	}
}
