package report

// Tally recomputes the cached counts and durations of every composite
// node in s. Terminal nodes derive their figures from their status and
// raw duration. Attachments never contribute. Tally overwrites previous
// results, so calling it repeatedly on an unchanged tree is a no-op.
func Tally(s *Suite) {
	if s == nil {
		return
	}

	s.counts = Counts{}

	for _, f := range s.Features {
		tallyFeature(f)
		s.counts.add(f.counts)
	}
}

func tallyFeature(f *Feature) {
	f.counts = Counts{}

	for _, sc := range f.Scenarios {
		tallyScenario(sc)
		f.counts.add(sc.counts)
	}
}

func tallyScenario(sc *Scenario) {
	sc.counts = Counts{}

	if sc.Background != nil {
		tallyBackground(sc.Background)
		sc.counts.add(sc.Background.counts)
	}

	for _, h := range sc.Before {
		sc.counts.add(terminal(h))
	}

	for _, st := range sc.Steps {
		sc.counts.add(terminal(st))
	}

	for _, h := range sc.After {
		sc.counts.add(terminal(h))
	}
}

func tallyBackground(b *Background) {
	b.counts = Counts{}

	for _, st := range b.Steps {
		b.counts.add(terminal(st))
	}
}

func terminal(n Node) Counts {
	return Counts{
		Passed:   n.PassCount(),
		Failed:   n.FailCount(),
		Skipped:  n.SkipCount(),
		Duration: n.Duration(),
	}
}
