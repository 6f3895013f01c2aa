package command

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/chabad360/scbridge/internal/envelope"
	"github.com/chabad360/scbridge/osc"
)

// FieldError reports a command argument that could not be read.
type FieldError struct {
	Address string
	Field   string
	Index   int
	Err     error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s (arg %d): %v", e.Address, e.Field, e.Index, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach the underlying error.
func (e *FieldError) Cause() error { return e.Err }

type reader struct {
	addr string
	args []interface{}
}

func newReader(msg *osc.Message, addr string) reader {
	return reader{addr: addr, args: msg.Arguments}
}

func (r reader) fail(i int, field string, err error) error {
	return &FieldError{Address: r.addr, Field: field, Index: i, Err: err}
}

func (r reader) expect(n int) error {
	if len(r.args) < n {
		return errors.Errorf("%s: need at least %d arguments, got %d", r.addr, n, len(r.args))
	}
	return nil
}

func (r reader) get(i int, field string) (interface{}, error) {
	if i >= len(r.args) {
		return nil, r.fail(i, field, errors.New("missing"))
	}
	return r.args[i], nil
}

func (r reader) String(i int, field string) (string, error) {
	v, err := r.get(i, field)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", r.fail(i, field, errors.Errorf("expected text, got %T", v))
	}
	return s, nil
}

// Number reads a decimal. Integers and decimal strings are accepted.
func (r reader) Number(i int, field string) (float64, error) {
	v, err := r.get(i, field)
	if err != nil {
		return 0, err
	}
	f, err := envelope.Number(v)
	if err != nil {
		return 0, r.fail(i, field, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, r.fail(i, field, errors.Errorf("not finite: %v", f))
	}
	return f, nil
}

// Int reads an integer. Whole-valued floats are accepted.
func (r reader) Int(i int, field string) (int64, error) {
	v, err := r.get(i, field)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32, float64:
		f, _ := envelope.Number(n)
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, r.fail(i, field, errors.Errorf("expected an integer, got %v", f))
		}
		return int64(f), nil
	}
	return 0, r.fail(i, field, errors.Errorf("expected an integer, got %T", v))
}

// Delay reads a non-negative millisecond count.
func (r reader) Delay(i int, field string) (time.Duration, error) {
	ms, err := r.Number(i, field)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, r.fail(i, field, errors.Errorf("negative: %v", ms))
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// Args returns the trailing name/value list starting at i.
func (r reader) Args(i int) ([]interface{}, error) {
	if i >= len(r.args) {
		return nil, nil
	}
	args := append([]interface{}(nil), r.args[i:]...)
	if err := ValidateArgs(args); err != nil {
		return nil, errors.Wrapf(err, "%s: args", r.addr)
	}
	return args, nil
}

// ValidateArgs checks that args alternates text names and text or numeric
// values, ending on a value.
func ValidateArgs(args []interface{}) error {
	for i, a := range args {
		if i%2 == 0 {
			if _, ok := a.(string); !ok {
				return errors.Errorf("position %d: expected a name, got %T", i, a)
			}
			continue
		}
		switch a.(type) {
		case string, float32, float64, int32, int64:
		default:
			return errors.Errorf("position %d: unsupported value type %T", i, a)
		}
	}
	if len(args)%2 != 0 {
		return errors.Errorf("name %q has no value", args[len(args)-1])
	}
	return nil
}

// HasArg reports whether the name/value list sets name.
func HasArg(args []interface{}, name string) bool {
	for i := 0; i < len(args); i += 2 {
		if s, ok := args[i].(string); ok && s == name {
			return true
		}
	}
	return false
}
