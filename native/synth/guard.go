package synth

// callGuard marks the mutual-exclusion region wrapped around every mutating
// entry point. Execution is single-threaded; the guard exists to reject
// synchronous self-reentrancy, where a token collaborator calls back into the
// engine before the original operation finishes.
type callGuard struct {
	locked bool
}

func (g *callGuard) Enter() error {
	if g.locked {
		return ErrReentrancy
	}
	g.locked = true
	return nil
}

func (g *callGuard) Exit() {
	g.locked = false
}
