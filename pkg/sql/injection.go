package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a bound parameter whose value looks like SQL injection.
type InjectionCheckResult struct {
	Position    int    // 1-based position of the parameter
	Fingerprint string // libinjection fingerprint
	Value       string
}

// ParamName returns the placeholder name used in audit logs, e.g. "$2".
func (r *InjectionCheckResult) ParamName() string {
	return fmt.Sprintf("$%d", r.Position)
}

// CheckParameterForInjection runs libinjection over a single bound value.
// Only strings are inspected; numbers, booleans and nil cannot carry SQL.
// Returns nil when the value is clean.
func CheckParameterForInjection(position int, value any) *InjectionCheckResult {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return nil
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{
			Position:    position,
			Fingerprint: string(fingerprint),
			Value:       s,
		}
	}
	return nil
}

// CheckAllParameters screens positional parameters in order. Parameters are
// always bound, never interpolated, so a detection is an audit signal and
// not a reason to refuse the statement.
func CheckAllParameters(params []any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, value := range params {
		if result := CheckParameterForInjection(i+1, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
