package lokacall

import "github.com/bodrovis/lokacall/clock"

// Clock and Scheduler are aliased from the clock subpackage so callers
// building a UnaryApiCallable only need to import lokacall itself; the
// clock subpackage stays import-cycle-free for clocktest to depend on.
type (
	Clock      = clock.Clock
	Scheduler  = clock.Scheduler
	CancelFunc = clock.CancelFunc
)

// SystemClock and SystemScheduler are the production bindings.
type (
	SystemClock     = clock.SystemClock
	SystemScheduler = clock.SystemScheduler
)
