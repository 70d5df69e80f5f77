package lokacall

import "fmt"

// codedErr is a test-only failure carrying a recognized Code, the way a
// transport adapter's error type would in production.
type codedErr struct {
	code Code
	msg  string
}

func (e *codedErr) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("coded error: %s", e.code)
}

func (e *codedErr) Code() Code { return e.code }

var _ Coder = (*codedErr)(nil)
