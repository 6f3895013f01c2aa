package osc

import (
	"reflect"
	"testing"
	"time"
)

func TestBundle_MarshalBinary(t *testing.T) {
	for _, tt := range bundleTestCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.obj.MarshalBinary()
			if (err != nil) != tt.wantErr {
				t.Errorf("MarshalBinary() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.raw) {
				t.Errorf("MarshalBinary() got = %v, want %v", got, tt.raw)
			}
		})
	}
}

func TestBundle_UnmarshalBinary(t *testing.T) {
	for _, tt := range bundleTestCases {
		t.Run(tt.name, func(t *testing.T) {
			m := new(Bundle)
			if err := m.UnmarshalBinary(tt.raw); (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalBinary() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(m, tt.obj) {
				t.Errorf("UnmarshalBinary() got = %v, want %v", m, tt.obj)
			}
		})
	}
}

func TestBundle_Append(t *testing.T) {
	b := NewBundle()
	if err := b.Append(NewMessage("/a")); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(NewBundle()); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(nil); err == nil {
		t.Error("Append(nil) expected error")
	}
	if len(b.Elements) != 2 {
		t.Errorf("len(Elements) = %d, want 2", len(b.Elements))
	}
}

func TestNewBundleWithTime(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 500000000, time.UTC)
	b := NewBundleWithTime(at, NewMessage("/a"))
	if got := b.Timetag.Time(); got.Sub(at).Abs() > time.Microsecond {
		t.Errorf("Timetag.Time() = %v, want %v", got, at)
	}
}
