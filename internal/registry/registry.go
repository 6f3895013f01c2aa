// Package registry maps caller-supplied voice names to the node handles the
// bridge assigns on the engine.
//
// Two independent registries exist at runtime: the live one owned by the
// interpreting loop and a fresh one per NRT render. They never share state.
package registry

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// Placeholder is replaced with the freshly assigned handle before a
	// name is stored, so "kb_{nodeId}" becomes "kb_101".
	Placeholder = "{nodeId}"

	// FirstHandle is the first handle a registry hands out. Lower handles
	// are reserved by the engine.
	FirstHandle int32 = 101
)

// ErrDuplicateName is returned when a name is already matched by an entry.
var ErrDuplicateName = errors.New("external name already taken")

// Index is the lookup surface translation code depends on.
type Index interface {
	// Assign stores name under the next unused handle and returns it.
	Assign(name string) (int32, error)
	// Search returns the handles of every entry matching pattern.
	Search(pattern string) []int32
	// Remove deletes the entry stored under exactly name.
	Remove(name string)
	// ClearMatching deletes every entry matching pattern.
	ClearMatching(pattern string)
	// Len returns the number of live entries.
	Len() int
}

// Expirer is implemented by indexes that can forget an entry once its
// voice has been released.
type Expirer interface {
	Expire(handle int32, at time.Time)
}

type entry struct {
	handle  int32
	expires time.Time
}

// Registry is an Index whose patterns are regular expressions. It is not
// safe for concurrent use; the owner serializes access.
type Registry struct {
	entries map[string]entry
	last    int32
	now     func() time.Time
	logger  *slog.Logger
}

var (
	_ Index   = (*Registry)(nil)
	_ Expirer = (*Registry)(nil)
)

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger used for malformed pattern warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		last:    FirstHandle - 1,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exact returns a pattern matching only name.
func Exact(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}

// Assign substitutes the placeholder in name with the next handle, checks
// that no entry already matches the result, and stores it. On conflict the
// registry, counter included, is left untouched.
func (r *Registry) Assign(name string) (int32, error) {
	r.evict()

	handle := r.last + 1
	resolved := strings.ReplaceAll(name, Placeholder, strconv.Itoa(int(handle)))

	if len(r.Search(Exact(resolved))) > 0 {
		return 0, errors.Wrapf(ErrDuplicateName, "assign %q", resolved)
	}

	r.last = handle
	r.entries[resolved] = entry{handle: handle}
	return handle, nil
}

// Search interprets pattern as a regular expression and returns the matching
// handles in ascending order. A malformed pattern logs a warning and matches
// nothing.
func (r *Registry) Search(pattern string) []int32 {
	r.evict()

	re, ok := r.compile(pattern)
	if !ok {
		return nil
	}

	var handles []int32
	for name, e := range r.entries {
		if re.MatchString(name) {
			handles = append(handles, e.handle)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	r.logger.Debug("registry search", "pattern", pattern, "matches", len(handles))
	return handles
}

// Remove deletes the entry stored under exactly name, if present.
func (r *Registry) Remove(name string) {
	delete(r.entries, name)
}

// ClearMatching deletes every entry whose name matches pattern.
func (r *Registry) ClearMatching(pattern string) {
	re, ok := r.compile(pattern)
	if !ok {
		return
	}
	for name := range r.entries {
		if re.MatchString(name) {
			delete(r.entries, name)
		}
	}
}

// Expire marks the entry holding handle for removal once at has passed.
func (r *Registry) Expire(handle int32, at time.Time) {
	for name, e := range r.entries {
		if e.handle == handle {
			e.expires = at
			r.entries[name] = e
			return
		}
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.evict()
	return len(r.entries)
}

func (r *Registry) compile(pattern string) (*regexp.Regexp, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		r.logger.Warn("invalid node name pattern", "pattern", pattern, "error", err)
		return nil, false
	}
	return re, true
}

func (r *Registry) evict() {
	now := r.now()
	for name, e := range r.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(r.entries, name)
		}
	}
}
