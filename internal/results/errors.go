package results

import "fmt"

// AggregationError reports result sets that cannot be combined, usually
// because two workers produced differently shaped output for the same
// variable.
type AggregationError struct {
	Variable string
	Msg      string
}

func (e *AggregationError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("results: aggregate: %s", e.Msg)
	}
	return fmt.Sprintf("results: aggregate %s: %s", e.Variable, e.Msg)
}
