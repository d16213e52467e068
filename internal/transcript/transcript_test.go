package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromHTML(t *testing.T) {
	in := `<html><head><title>Interview</title><style>p{}</style></head>
<body><h1>Interview 12</h1>
<p>Interviewer: Are there   benches?</p>
<p>Respondent: Yes, two of them.</p>
<script>console.log("x")</script>
</body></html>`
	got, err := FromHTML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	want := "Interview 12\nInterviewer: Are there benches?\nRespondent: Yes, two of them."
	if got != want {
		t.Errorf("FromHTML() = %q, want %q", got, want)
	}
}

func TestLoad_Text(t *testing.T) {
	p := filepath.Join(t.TempDir(), "session.txt")
	os.WriteFile(p, []byte("\n  I feel safe here.  \n"), 0o644)

	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "I feel safe here." {
		t.Errorf("Load() = %q", got)
	}
}

func TestLoad_HTMLFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "session.HTML")
	os.WriteFile(p, []byte("<p>No lights at night.</p>"), 0o644)

	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "No lights at night." {
		t.Errorf("Load() = %q", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	for _, name := range []string{"nope.txt", "nope.pdf", "nope.html"} {
		if _, err := Load(filepath.Join(t.TempDir(), name)); err == nil {
			t.Errorf("Load(%s): expected error", name)
		}
	}
}

func TestLoad_InvalidPDF(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.pdf")
	os.WriteFile(p, []byte("not a pdf"), 0o644)
	if _, err := Load(p); err == nil {
		t.Error("expected error for invalid pdf")
	}
}
