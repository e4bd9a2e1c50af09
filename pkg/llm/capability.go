package llm

// Capability records, once at startup, whether an oracle can be used.
// Callers branch on it a single time instead of nil-checking the oracle at
// every call site.
type Capability struct {
	oracle Oracle
	reason string
}

// Available wraps a configured oracle.
func Available(oracle Oracle) Capability {
	if oracle == nil {
		return Unavailable("oracle not configured")
	}
	return Capability{oracle: oracle}
}

// Unavailable records why no oracle can be used.
func Unavailable(reason string) Capability {
	return Capability{reason: reason}
}

// Oracle returns the oracle and whether it is available.
func (c Capability) Oracle() (Oracle, bool) {
	return c.oracle, c.oracle != nil
}

// IsAvailable reports whether an oracle is configured.
func (c Capability) IsAvailable() bool {
	return c.oracle != nil
}

// Reason explains an unavailable capability. Empty when available.
func (c Capability) Reason() string {
	return c.reason
}
