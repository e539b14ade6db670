package format

import (
	"testing"
)

func TestHumanBytes(t *testing.T) {
	type testCase struct {
		input    int64
		expected string
	}

	tests := []testCase{
		{0, "0 B"},
		{1, "1 B"},
		{999, "999 B"},
		{1000, "1.0 KB"},
		{1500, "1.5 KB"},
		{1000000, "1.0 MB"},
		{2500000, "2.5 MB"},
		{1000000000, "1.0 GB"},
		{1000000000000, "1.0 TB"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			if got := HumanBytes(tc.input); got != tc.expected {
				t.Errorf("HumanBytes(%d) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestHumanNumber(t *testing.T) {
	type testCase struct {
		input    uint64
		expected string
	}

	tests := []testCase{
		{0, "0"},
		{999, "999"},
		{1000, "1.00K"},
		{125000, "125K"},
		{1000000, "1.00M"},
		{26000000, "26.0M"},
		{7250000000, "7.25B"},
		{1000000000000, "1.00T"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			if got := HumanNumber(tc.input); got != tc.expected {
				t.Errorf("HumanNumber(%d) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestShape(t *testing.T) {
	type testCase struct {
		input    []int64
		expected string
	}

	tests := []testCase{
		{nil, "scalar"},
		{[]int64{4}, "4"},
		{[]int64{2, 3}, "2x3"},
		{[]int64{1, 2, 3, 4}, "1x2x3x4"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			if got := Shape(tc.input); got != tc.expected {
				t.Errorf("Shape(%v) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
