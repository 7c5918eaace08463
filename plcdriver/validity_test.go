package plcdriver

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want bool
	}{
		{"nil", nil, false},
		{"true", true, true},
		{"false", false, true},
		{"zero float", 0.0, true},
		{"negative float", -42.5, true},
		{"nan", math.NaN(), false},
		{"positive inf", math.Inf(1), false},
		{"negative inf", math.Inf(-1), false},
		{"int", int32(7), true},
		{"uint", uint16(7), true},
		{"string", "nope", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isValid(c.in); got != c.want {
				t.Errorf("isValid(%v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestToFloat64(t *testing.T) {
	if f, ok := toFloat64(true); !ok || f != 1 {
		t.Errorf("toFloat64(true) = (%v, %v), want (1, true)", f, ok)
	}
	if f, ok := toFloat64(false); !ok || f != 0 {
		t.Errorf("toFloat64(false) = (%v, %v), want (0, true)", f, ok)
	}
	if f, ok := toFloat64(int32(-3)); !ok || f != -3 {
		t.Errorf("toFloat64(int32(-3)) = (%v, %v), want (-3, true)", f, ok)
	}
	if _, ok := toFloat64("nope"); ok {
		t.Error("toFloat64(string) should fail")
	}
}
