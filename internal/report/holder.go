package report

import "sync/atomic"

// Holder hands out the current rule set and lets the config watcher swap in
// a reloaded one without a restart. Readers keep whatever snapshot they
// grabbed; mid-report consistency beats immediacy.
type Holder struct {
	v atomic.Value
}

// NewHolder seeds the holder; nil means built-in defaults.
func NewHolder(r *Rules) *Holder {
	if r == nil {
		r = DefaultRules()
	}
	h := &Holder{}
	h.v.Store(r)
	return h
}

// Current returns the active rule set.
func (h *Holder) Current() *Rules {
	return h.v.Load().(*Rules)
}

// Swap installs a new rule set.
func (h *Holder) Swap(r *Rules) {
	if r != nil {
		h.v.Store(r)
	}
}
