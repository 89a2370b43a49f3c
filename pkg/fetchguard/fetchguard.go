// Package fetchguard discards responses of superseded fetches. Each fetch takes a
// token for its scope; starting a newer fetch for the same scope invalidates older tokens.
package fetchguard

import "sync"

// Token identifies one fetch within a scope. Generations are unique across the
// tracker, so a token never matches a scope entry created after it was dropped.
type Token struct {
	Scope      string
	Generation uint64
}

type scopeState struct {
	// apply serializes commits of one scope.
	apply  sync.Mutex
	latest uint64
}

// Tracker hands out tokens and remembers the latest generation per scope. A scope is
// forgotten once its latest token commits or is released.
type Tracker struct {
	mu     sync.Mutex
	next   uint64
	scopes map[string]*scopeState
}

// New constructs an empty tracker.
func New() *Tracker {
	return &Tracker{scopes: make(map[string]*scopeState)}
}

// Begin starts a fetch for scope and supersedes any in-flight one.
func (t *Tracker) Begin(scope string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	st, ok := t.scopes[scope]
	if !ok {
		st = &scopeState{}
		t.scopes[scope] = st
	}
	st.latest = t.next
	return Token{Scope: scope, Generation: t.next}
}

// Current reports whether tok still belongs to the latest fetch of its scope.
func (t *Tracker) Current(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.currentLocked(tok)
	return ok
}

// Commit runs apply only when tok is current. Commits of the same scope run one at a
// time and a token superseded before its commit starts is rejected, so the newest
// fetch is always applied last. Other scopes are not blocked while apply runs. It
// reports whether apply ran.
func (t *Tracker) Commit(tok Token, apply func()) bool {
	t.mu.Lock()
	st, ok := t.currentLocked(tok)
	t.mu.Unlock()
	if !ok {
		return false
	}

	st.apply.Lock()
	defer st.apply.Unlock()
	t.mu.Lock()
	_, ok = t.currentLocked(tok)
	t.mu.Unlock()
	if !ok {
		return false
	}

	apply()
	t.Release(tok)
	return true
}

// Release forgets the scope of tok when no newer fetch has started. Fetches that end
// without committing call it so idle scopes do not accumulate.
func (t *Tracker) Release(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.currentLocked(tok); ok {
		delete(t.scopes, tok.Scope)
	}
}

// Cancel invalidates every outstanding token for scope.
func (t *Tracker) Cancel(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scopes, scope)
}

// Len reports how many scopes have a fetch in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scopes)
}

func (t *Tracker) currentLocked(tok Token) (*scopeState, bool) {
	st, ok := t.scopes[tok.Scope]
	if !ok || st.latest != tok.Generation {
		return nil, false
	}
	return st, true
}
