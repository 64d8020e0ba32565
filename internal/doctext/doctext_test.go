package doctext

import "testing"

func TestLooksLikeMarkup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{"<div>hi</div>", true},
		{"  <p>spaced</p>", true},
		{"3 < 5 and 5 > 3", false},
		{"plain text", false},
		{"<br>", false}, // no closing tag
	}
	for _, c := range cases {
		if got := LooksLikeMarkup(c.in); got != c.want {
			t.Fatalf("LooksLikeMarkup(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFlatten_StripsTagsAndCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	in := "<div xmlns=\"http://www.w3.org/1999/xhtml\">\n  <h1>Report</h1>\n  <p>Line one.</p>\n  <p>Line   two.</p>\n</div>"
	want := "Report Line one. Line two."
	if got := Flatten(in); got != want {
		t.Fatalf("Flatten = %q, want %q", got, want)
	}
}

func TestFlatten_KeepsEntitiesDecoded(t *testing.T) {
	t.Parallel()

	if got := Flatten("<p>Na&#43; 140&nbsp;mmol/L</p>"); got == "" {
		t.Fatalf("entities should decode to text, got empty string")
	}
}
