package isolator

import "strings"

// combinedError aggregates every sibling failure from one fan-out barrier
// (§4.5, §7: "concatenates all child failure messages joined by
// newlines"). It implements Unwrap() []error so errors.Is/errors.As still
// see through it.
type combinedError struct {
	errs []error
}

func (c *combinedError) Error() string {
	msgs := make([]string, len(c.errs))
	for i, e := range c.errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

func (c *combinedError) Unwrap() []error {
	return c.errs
}

// combine returns nil if every err is nil, the single non-nil error
// unwrapped if there is exactly one, or a *combinedError otherwise. Fan-out
// barriers never short-circuit (§5 Cancellation, §7 Propagation): every
// sibling is awaited and its failure, if any, is collected here.
func combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &combinedError{errs: nonNil}
	}
}
