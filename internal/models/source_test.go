package models

import "testing"

func TestSourceKind_Unstructured(t *testing.T) {
	tests := []struct {
		kind         SourceKind
		valid        bool
		unstructured bool
	}{
		{SourceKindRSS, true, false},
		{SourceKindHTML, true, false},
		{SourceKindJSON, true, false},
		{SourceKindImage, true, true},
		{SourceKindSocial, true, true},
		{SourceKind("ftp"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.kind.Unstructured(); got != tt.unstructured {
				t.Errorf("Unstructured() = %v, want %v", got, tt.unstructured)
			}
		})
	}
}

func TestSourceConfig_IsEnabled(t *testing.T) {
	off, on := false, true
	if !(SourceConfig{}).IsEnabled() {
		t.Error("missing enabled flag should mean enabled")
	}
	if (SourceConfig{Enabled: &off}).IsEnabled() {
		t.Error("enabled: false should disable")
	}
	if !(SourceConfig{Enabled: &on}).IsEnabled() {
		t.Error("enabled: true should enable")
	}
}

func TestCandidate_NeedsExtraction(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
		want bool
	}{
		{"structured", Candidate{Title: "Jazz Night", Start: "2026-03-14"}, false},
		{"image", Candidate{Title: "Jazz Night", Image: []byte{0xff}}, true},
		{"raw text only", Candidate{RawText: "Jazz Night am 14.03."}, true},
		{"empty", Candidate{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.NeedsExtraction(); got != tt.want {
				t.Errorf("NeedsExtraction() = %v, want %v", got, tt.want)
			}
		})
	}
}
