package nrt

import (
	"strconv"
	"strings"

	"github.com/chabad360/scbridge/internal/command"
)

var scriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// RenderRow renders a wire message as a score row:
//
//	[ 0.50000, ["/s_new","bell",101,0,0,"freq",440.00000] ]
//
// Argument kinds the score cannot express render as err so the loss is
// visible in the file.
func RenderRow(t command.Timed) string {
	var b strings.Builder
	b.WriteString("[ ")
	b.WriteString(strconv.FormatFloat(t.Time, 'f', 5, 64))
	b.WriteString(`, ["`)
	b.WriteString(t.Message.Address)
	b.WriteByte('"')
	for _, arg := range t.Message.Arguments {
		b.WriteByte(',')
		b.WriteString(renderArg(arg))
	}
	b.WriteString("] ]")
	return b.String()
}

func renderArg(arg interface{}) string {
	switch v := arg.(type) {
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', 5, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', 5, 64)
	case string:
		return quote(v)
	default:
		return "err"
	}
}

// SynthdefRow sends a definition to the render server at time zero.
func SynthdefRow(def string) string {
	return "[0.0, ['/d_recv', " + def + ".asBytes]]"
}

func quote(s string) string {
	return `"` + scriptEscaper.Replace(s) + `"`
}
