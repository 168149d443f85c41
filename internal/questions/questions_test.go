package questions

import (
	"encoding/json"
	"testing"
)

func TestLoad(t *testing.T) {
	b, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(b.Coding) != 5 {
		t.Errorf("coding questions = %d, want 5", len(b.Coding))
	}
	if len(b.React) != 3 {
		t.Errorf("react questions = %d, want 3", len(b.React))
	}
	if len(b.Java) != 4 {
		t.Errorf("java questions = %d, want 4", len(b.Java))
	}
	if b.Coding[0].ExpectedOutput != "365.0" {
		t.Errorf("first expected output = %q, want %q", b.Coding[0].ExpectedOutput, "365.0")
	}
	if b.Java[0].ID != "java1" {
		t.Errorf("first java id = %q, want %q", b.Java[0].ID, "java1")
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", `{"coding":`},
		{"missing round", `{"coding":[{"id":1}],"react":[],"java":[{"id":"j","accept":[["for"]]}]}`},
		{"react without markers", `{"coding":[{"id":1}],"react":[{"id":1}],"java":[{"id":"j","accept":[["for"]]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestPublicViewsHideAnswers(t *testing.T) {
	b, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for name, v := range map[string]any{
		"coding": b.PublicCoding(),
		"react":  b.PublicReact(),
		"java":   b.PublicJava(),
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			t.Fatalf("unmarshal %s: %v", name, err)
		}
		for _, item := range items {
			for _, hidden := range []string{"expected_output", "expectedOutput", "solution", "accept"} {
				if _, ok := item[hidden]; ok {
					t.Errorf("%s question %v exposes %s", name, item["id"], hidden)
				}
			}
		}
	}
}
