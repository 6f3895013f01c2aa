package registry

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ExactIndex is an Index without pattern semantics: every pattern is taken
// as a literal name. It suits callers that address voices one by one.
type ExactIndex struct {
	entries map[string]int32
	last    int32
}

var _ Index = (*ExactIndex)(nil)

// NewExact returns an empty ExactIndex.
func NewExact() *ExactIndex {
	return &ExactIndex{entries: make(map[string]int32), last: FirstHandle - 1}
}

func (x *ExactIndex) Assign(name string) (int32, error) {
	handle := x.last + 1
	resolved := strings.ReplaceAll(name, Placeholder, strconv.Itoa(int(handle)))
	if _, taken := x.entries[resolved]; taken {
		return 0, errors.Wrapf(ErrDuplicateName, "assign %q", resolved)
	}
	x.last = handle
	x.entries[resolved] = handle
	return handle, nil
}

func (x *ExactIndex) Search(name string) []int32 {
	if h, ok := x.entries[name]; ok {
		return []int32{h}
	}
	return nil
}

func (x *ExactIndex) Remove(name string) { delete(x.entries, name) }

func (x *ExactIndex) ClearMatching(name string) { delete(x.entries, name) }

func (x *ExactIndex) Len() int { return len(x.entries) }
