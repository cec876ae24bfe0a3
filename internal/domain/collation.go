package domain

import "strings"

// Collator compares two text values. Negative, zero, positive like
// strings.Compare. A nil Collator means bytewise comparison.
type Collator func(a, b string) int

// CollatorRegistry maps collation keys to comparators. Callers register
// comparators for the locales they care about; the engine only passes the
// key through, it knows nothing about locales itself.
type CollatorRegistry struct {
	collators map[string]Collator
}

func NewCollatorRegistry() *CollatorRegistry {
	r := &CollatorRegistry{collators: make(map[string]Collator)}
	r.Register("BINARY", strings.Compare)
	r.Register("NOCASE", func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return r
}

func (r *CollatorRegistry) Register(key string, c Collator) {
	r.collators[strings.ToUpper(key)] = c
}

func (r *CollatorRegistry) Lookup(key string) (Collator, bool) {
	c, ok := r.collators[strings.ToUpper(key)]
	return c, ok
}
