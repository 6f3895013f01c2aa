package osc

const zero = string(byte(0))

// nulls returns a string of `i` nulls.
func nulls(i int) string {
	s := ""
	for j := 0; j < i; j++ {
		s += zero
	}
	return s
}

type testCase struct {
	name    string
	obj     Packet
	raw     []byte
	wantErr bool
}

func raw(parts ...string) []byte {
	s := ""
	for _, p := range parts {
		s += p
	}
	return []byte(s)
}

var messageTestCases = []testCase{
	{
		name: "no_args",
		obj:  &Message{Address: "/a"},
		raw:  raw("/a", nulls(2), ",", nulls(3)),
	},
	{
		name: "int32",
		obj:  &Message{Address: "/abc", Arguments: []interface{}{int32(1)}},
		raw:  raw("/abc", nulls(4), ",i", nulls(2), nulls(3), "\x01"),
	},
	{
		name: "string",
		obj:  &Message{Address: "/s_new", Arguments: []interface{}{"hi"}},
		raw:  raw("/s_new", nulls(2), ",s", nulls(2), "hi", nulls(2)),
	},
	{
		name: "float32",
		obj:  &Message{Address: "/f", Arguments: []interface{}{float32(1)}},
		raw:  raw("/f", nulls(2), ",f", nulls(2), "\x3f\x80", nulls(2)),
	},
	{
		name: "bool_nil",
		obj:  &Message{Address: "/b", Arguments: []interface{}{true, false, nil}},
		raw:  raw("/b", nulls(2), ",TFN", nulls(4)),
	},
	{
		name: "int64_float64",
		obj:  &Message{Address: "/hd", Arguments: []interface{}{int64(2), float64(1)}},
		raw:  raw("/hd", nulls(1), ",hd", nulls(1), nulls(7), "\x02", "\x3f\xf0", nulls(6)),
	},
	{
		name: "blob",
		obj:  &Message{Address: "/blob", Arguments: []interface{}{[]byte{1, 2, 3}}},
		raw:  raw("/blob", nulls(3), ",b", nulls(2), nulls(3), "\x03", "\x01\x02\x03", nulls(1)),
	},
	{
		name: "timetag",
		obj:  &Message{Address: "/t", Arguments: []interface{}{Timetag(1)}},
		raw:  raw("/t", nulls(2), ",t", nulls(2), nulls(7), "\x01"),
	},
}

var bundleTestCases = []testCase{
	{
		name: "empty",
		obj:  &Bundle{Timetag: 1},
		raw:  raw("#bundle", nulls(1), nulls(7), "\x01"),
	},
	{
		name: "one_message",
		obj:  &Bundle{Timetag: 1, Elements: []Packet{&Message{Address: "/a"}}},
		raw:  raw("#bundle", nulls(1), nulls(7), "\x01", nulls(3), "\x08", "/a", nulls(2), ",", nulls(3)),
	},
	{
		name: "nested",
		obj: &Bundle{Timetag: 1, Elements: []Packet{
			&Bundle{Timetag: 1, Elements: []Packet{&Message{Address: "/a"}}},
		}},
		raw: raw("#bundle", nulls(1), nulls(7), "\x01", nulls(3), "\x1c",
			"#bundle", nulls(1), nulls(7), "\x01", nulls(3), "\x08", "/a", nulls(2), ",", nulls(3)),
	},
}
