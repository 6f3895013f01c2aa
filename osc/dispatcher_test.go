package osc

import (
	"net"
	"testing"
)

func TestDispatcher_AddMethodFunc(t *testing.T) {
	type args struct {
		addr   string
		method MethodFunc
	}
	tests := []struct {
		name    string
		methods map[string]Method
		args    args
		wantErr bool
	}{
		{"valid", nil, args{"/address/test", func(_ *Message) {}}, false},
		{"invalid", nil, args{"/address*/test", func(_ *Message) {}}, true},
		{"already_exists", map[string]Method{"/address/test": MethodFunc(func(_ *Message) {})}, args{"/address/test", func(_ *Message) {}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dispatcher{
				methods: tt.methods,
			}
			if err := d.AddMethodFunc(tt.args.addr, tt.args.method); (err != nil) != tt.wantErr {
				t.Errorf("AddMethodFunc() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func adder(n int) MethodFunc {
	return func(msg *Message) {
		msg.Arguments[0] = msg.Arguments[0].(int) + n
	}
}

var testDispatcher = &Dispatcher{
	methods: map[string]Method{
		"/osc":     adder(1),
		"/os":      adder(2),
		"/osv":     adder(4),
		"/osabc":   adder(8),
		"/osc123":  adder(16),
		"/osc1b3":  adder(32),
		"/oscz":    adder(64),
		"/osc/z":   adder(128),
		"/osc/23f": adder(256),
	},
}

func TestDispatcher_Dispatch(t *testing.T) {
	type args struct {
		packet Packet
		a      net.Addr
	}
	tests := []struct {
		name   string
		args   args
		expect int
	}{
		{"single", args{NewMessage("/osc", 0), nil}, 1},
		{"c_or_not", args{NewMessage("/os{c,}", 0), nil}, 3},
		{"single_any", args{NewMessage("/os{?,}", 0), nil}, 7},
		{"single_must", args{NewMessage("/os{c,v}", 0), nil}, 5},
		{"match_in_part", args{NewMessage("/osc{?,}z", 0), nil}, 64},
		{"match_multiple_parts", args{NewMessage("/osc/?", 0), nil}, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testDispatcher.Dispatch(tt.args.packet, tt.args.a)
			p := tt.args.packet.(*Message)
			if p.Arguments[0].(int) != tt.expect {
				t.Errorf("Dispatch() got = %v, expect %v", p.Arguments[0].(int), tt.expect)
			}
		})
	}
}

func TestDispatcher_NotFoundAndBundleMethod(t *testing.T) {
	var missed []string
	var bundles int
	d := &Dispatcher{
		NotFound:     func(msg *Message) { missed = append(missed, msg.Address) },
		BundleMethod: func(_ *Bundle, _ net.Addr) { bundles++ },
	}
	if err := d.AddMethodFunc("/known", func(_ *Message) {}); err != nil {
		t.Fatal(err)
	}

	d.Dispatch(NewMessage("/known"), nil)
	d.Dispatch(NewMessage("/unknown"), nil)
	d.Dispatch(NewBundle(NewMessage("/known")), nil)

	if len(missed) != 1 || missed[0] != "/unknown" {
		t.Errorf("NotFound got %v, want [/unknown]", missed)
	}
	if bundles != 1 {
		t.Errorf("BundleMethod called %d times, want 1", bundles)
	}
	if n := d.DispatchMessage(NewMessage("/kn*")); n != 1 {
		t.Errorf("DispatchMessage() = %d, want 1", n)
	}
}
