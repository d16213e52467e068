package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"Yes, there are benches", Affirmative},
		{"No, it felt unsafe", Negative},
		{"unsafe", Negative},
		{"UNSAFE at night", Negative},
		{"It is safe", Affirmative},
		{"pretty good", Affirmative},
		{"well lit", Affirmative},
		{"poor lighting", Negative},
		{"quite unappealing", Negative},
		{"appealing", Affirmative},
		{"nobody around", Other},   // "no" is not a word here
		{"wellness centre", Other}, // nor is "well"
		{"sometimes", Other},
	}
	for _, tt := range tests {
		if got := Classify(tt.in); got.Kind != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.in, got.Kind, tt.want)
		}
	}
}

func TestClassify_ReservedKeys(t *testing.T) {
	if b := Classify("yes"); b.Key != KeyAffirmative {
		t.Errorf("Key = %q, want %q", b.Key, KeyAffirmative)
	}
	if b := Classify("no"); b.Key != KeyNegative {
		t.Errorf("Key = %q, want %q", b.Key, KeyNegative)
	}
	if b := Classify("  \t"); b.Kind != Unanswered || b.Key != KeyUnanswered {
		t.Errorf("blank = %+v, want unanswered bucket", b)
	}
}

func TestClassify_OtherKeepsDisplay(t *testing.T) {
	b := Classify("  Sometimes, On Weekends ")
	if b.Kind != Other {
		t.Fatalf("Kind = %v, want other", b.Kind)
	}
	if b.Key != "sometimes, on weekends" {
		t.Errorf("Key = %q, want lowercase trimmed text", b.Key)
	}
	if b.Display != "Sometimes, On Weekends" {
		t.Errorf("Display = %q, want original-cased trimmed text", b.Display)
	}
}

func TestClassify_OtherNeverTakesReservedKey(t *testing.T) {
	tests := []struct {
		in      string
		wantKey string
	}{
		{"Unanswered", "other:unanswered"},
		{"other:unanswered", "other:other:unanswered"},
		{"Other: maybe", "other:other: maybe"},
		{"Maybe", "maybe"},
	}
	for _, tt := range tests {
		b := Classify(tt.in)
		if b.Kind != Other || b.Key != tt.wantKey {
			t.Errorf("Classify(%q) = %+v, want other with key %q", tt.in, b, tt.wantKey)
		}
		if IsReserved(b.Key) {
			t.Errorf("Classify(%q) got reserved key %q", tt.in, b.Key)
		}
	}

	// Without yes/no in the lexicon those words are Other answers too.
	bare := New(Lexicon{Affirmative: []string{"fine"}})
	if b := bare.Classify("Yes"); b.Kind != Other || b.Key != "other:yes" || b.Display != "Yes" {
		t.Errorf("Classify(Yes) = %+v, want escaped other bucket", b)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for range 3 {
		if got := Classify("No, it felt unsafe"); got != negativeBucket {
			t.Fatalf("Classify() = %+v, want %+v", got, negativeBucket)
		}
	}
}

func TestNew_ExtendedLexicon(t *testing.T) {
	c := New(DefaultLexicon().Extend([]string{"sure", "of course"}, []string{"never"}))

	if got := c.Classify("Of course!"); got.Kind != Affirmative {
		t.Errorf("Classify(Of course!) = %v, want affirmative", got.Kind)
	}
	if got := c.Classify("course work"); got.Kind != Other {
		t.Errorf("Classify(course work) = %v, want other", got.Kind)
	}
	if got := c.Classify("never again"); got.Kind != Negative {
		t.Errorf("Classify(never again) = %v, want negative", got.Kind)
	}
	// Default lexicon is untouched.
	if got := Classify("never again"); got.Kind != Other {
		t.Errorf("default Classify(never again) = %v, want other", got.Kind)
	}
}

func TestKindString(t *testing.T) {
	if Negative.String() != "negative" || Unanswered.String() != "unanswered" {
		t.Errorf("String() = %q, %q", Negative.String(), Unanswered.String())
	}
}
