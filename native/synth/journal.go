package synth

import "errors"

// journal collects compensating actions for mutations already applied within
// the current operation. When the operation fails partway, the recorded
// actions run in reverse order so the whole call commits or unwinds as a
// single unit.
type journal struct {
	undos []func() error
}

func (j *journal) record(undo func() error) {
	j.undos = append(j.undos, undo)
}

func (j *journal) unwind() error {
	var failures []error
	for i := len(j.undos) - 1; i >= 0; i-- {
		if err := j.undos[i](); err != nil {
			failures = append(failures, err)
		}
	}
	j.undos = nil
	return errors.Join(failures...)
}
