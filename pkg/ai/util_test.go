package ai

import (
	"testing"
)

type sampleTarget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalFlexible_StandardJSON(t *testing.T) {
	var out sampleTarget
	if err := UnmarshalFlexible(`{"name": "api", "count": 3}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "api" || out.Count != 3 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_DoubleEncoded(t *testing.T) {
	var out sampleTarget
	if err := UnmarshalFlexible(`"{\"name\": \"api\", \"count\": 3}"`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "api" || out.Count != 3 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_Malformed(t *testing.T) {
	var out sampleTarget
	if err := UnmarshalFlexible(`{name: "api", count: 3,}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "api" || out.Count != 3 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_DuplicateLeadingBrace(t *testing.T) {
	var out sampleTarget
	if err := UnmarshalFlexible(`{{"name": "api", "count": 1}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "api" || out.Count != 1 {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestUnmarshalFlexible_Garbage(t *testing.T) {
	var out sampleTarget
	if err := UnmarshalFlexible(`not json at all`, &out); err == nil {
		t.Fatalf("expected error for non-JSON input")
	}
}

func TestExtractFencedBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "json fence",
			input: "Here you go:\n```json\n{\"a\": 1}\n```\nDone.",
			want:  `{"a": 1}`,
			ok:    true,
		},
		{
			name:  "bare fence",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
			ok:    true,
		},
		{
			name:  "no fence",
			input: `{"a": 1}`,
			ok:    false,
		},
		{
			name:  "unterminated fence",
			input: "```json\n{\"a\": 1}",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractFencedBlock(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBraceSpan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "prose around object",
			input: `Sure! {"action": "answer", "answer": "yes"} Hope that helps.`,
			want:  `{"action": "answer", "answer": "yes"}`,
			ok:    true,
		},
		{
			name:  "nested objects",
			input: `{"a": {"b": 2}} trailing`,
			want:  `{"a": {"b": 2}}`,
			ok:    true,
		},
		{
			name:  "brace inside string",
			input: `{"msg": "use { and } carefully"} rest`,
			want:  `{"msg": "use { and } carefully"}`,
			ok:    true,
		},
		{
			name:  "escaped quote inside string",
			input: `{"msg": "say \"{\" out loud"}`,
			want:  `{"msg": "say \"{\" out loud"}`,
			ok:    true,
		},
		{
			name:  "no braces",
			input: "nothing here",
			ok:    false,
		},
		{
			name:  "unbalanced",
			input: `{"a": 1`,
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractBraceSpan(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
