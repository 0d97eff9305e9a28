package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("CAMPUSCARE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("CAMPUSCARE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 30 * time.Second},
		{"5s", 5 * time.Second},
		{"1m30s", 90 * time.Second},
		{"-1s", 30 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("CAMPUSCARE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("CAMPUSCARE_TEST_DURATION", 30*time.Second); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("CAMPUSCARE_TEST_STRING", "")
	if got := GetEnvDefault("CAMPUSCARE_TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	t.Setenv("CAMPUSCARE_TEST_STRING", "set")
	if got := GetEnvDefault("CAMPUSCARE_TEST_STRING", "fallback"); got != "set" {
		t.Errorf("expected set, got %q", got)
	}
}
