package utils

import (
	"testing"
)

const epsilon = 1e-9

func TestRoundDown(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		step     float64
		expected float64
	}{
		{"three decimals", 0.123456, 0.001, 0.123},
		{"two decimals", 1.999, 0.01, 1.99},
		{"whole units", 100.5, 1, 100},
		{"exact multiple", 0.3, 0.1, 0.3},
		{"zero step", 1.23456, 0, 1.23456},
		{"negative step", 1.5, -1, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundDown(tt.value, tt.step)
			if !AlmostEqual(got, tt.expected, epsilon) {
				t.Errorf("RoundDown(%v, %v) = %v, want %v", tt.value, tt.step, got, tt.expected)
			}
		})
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		expected float64
	}{
		{"rise", 100, 102.5, 2.5},
		{"fall", 100, 95, -5},
		{"flat", 100, 100, 0},
		{"from zero", 0, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentChange(tt.from, tt.to)
			if !AlmostEqual(got, tt.expected, epsilon) {
				t.Errorf("PercentChange(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestApplyPercent(t *testing.T) {
	if got := ApplyPercent(100, 2); got != 102 {
		t.Errorf("ApplyPercent(100, 2) = %v, want 102", got)
	}
	if got := ApplyPercent(2000000, -0.05); !AlmostEqual(got, 1999000, 1e-6) {
		t.Errorf("ApplyPercent(2000000, -0.05) = %v, want 1999000", got)
	}
}

func TestMeanMinMaxSum(t *testing.T) {
	values := []float64{100, 100, 100, 105, 110}

	if got := Mean(values); got != 103 {
		t.Errorf("Mean = %v, want 103", got)
	}
	min, max := MinMax(values)
	if min != 100 || max != 110 {
		t.Errorf("MinMax = (%v, %v), want (100, 110)", min, max)
	}
	if got := Sum(values); got != 515 {
		t.Errorf("Sum = %v, want 515", got)
	}

	if Mean(nil) != 0 {
		t.Error("Mean(nil) should be 0")
	}
	if min, max := MinMax(nil); min != 0 || max != 0 {
		t.Error("MinMax(nil) should be (0, 0)")
	}
}

func TestRoundToDecimals(t *testing.T) {
	if got := RoundToDecimals(2.4999999, 2); got != 2.5 {
		t.Errorf("RoundToDecimals = %v, want 2.5", got)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := Clamp(tt.value, tt.min, tt.max); got != tt.expected {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, got, tt.expected)
		}
	}
}

func BenchmarkMean(b *testing.B) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Mean(values)
	}
}
