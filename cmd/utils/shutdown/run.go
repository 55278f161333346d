package shutdown

import "fmt"

// RunThenTrigger runs fn and reports its result to trigger. A successful run is not reported when skipOnSuccess is
// set. A panic is reported as an error and re-raised.
func RunThenTrigger(trigger Trigger, skipOnSuccess bool, fn func() error) {
	var (
		err      error
		finished bool
	)
	defer func() {
		if !finished {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				trigger(err)
				panic(r)
			}
		}
		if err != nil || !skipOnSuccess {
			trigger(err)
		}
	}()
	err = fn()
	finished = true
}
