package htmlutil

import (
	"math/rand"
	"testing"

	testutil "fablab-opendata/test/util"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "machine description",
			input:    "<p>Great <b>laser</b> cutter</p>",
			expected: "Great laser cutter",
		},
		{
			name:     "anchor kept in readable form",
			input:    `<p>Visit <a href="https://example.com">our site</a> for more.</p>`,
			expected: "Visit our site (https://example.com) for more.",
		},
		{
			name:     "nested lists",
			input:    "<ul><li>Power: 100W</li><li>Area: 60x40</li></ul>",
			expected: "Power: 100W Area: 60x40",
		},
		{
			name:     "entities decoded",
			input:    "Cutting &amp; engraving",
			expected: "Cutting & engraving",
		},
		{
			name:     "entity-encoded markup fully stripped",
			input:    "&lt;b&gt;laser&lt;/b&gt; cutter",
			expected: "laser cutter",
		},
		{
			name:     "doubly entity-encoded markup fully stripped",
			input:    "&amp;lt;p&amp;gt;nested&amp;lt;/p&amp;gt;",
			expected: "nested",
		},
		{
			name:     "unclosed tags",
			input:    "<p>unterminated <b>bold",
			expected: "unterminated bold",
		},
		{
			name:     "whitespace collapsed",
			input:    "several\n\n   words\t\there",
			expected: "several words here",
		},
		{
			name:     "unicode line separators",
			input:    "line one line two line three",
			expected: "line one line two line three",
		},
		{
			name:     "anchor without text dropped",
			input:    `before <a href="https://example.com"></a> after`,
			expected: "before after",
		},
		{
			name:     "script content removed",
			input:    "<p>visible</p><script>var hidden = 1;</script>",
			expected: "visible",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, Sanitize(test.input))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"<p>Great <b>laser</b> cutter</p>",
		`<p>Visit <a href="https://example.com">our site</a> for more.</p>`,
		"plain text stays plain",
		"a < b but > c",
		"Cutting &amp; engraving",
		"&lt;b&gt;laser&lt;/b&gt; cutter",
		"&amp;lt;p&amp;gt;nested&amp;lt;/p&amp;gt;",
	}

	rndm := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		inputs = append(inputs, testutil.RandomString(rndm, rndm.Intn(40)))
	}

	for _, input := range inputs {
		once := Sanitize(input)
		require.Equal(t, once, Sanitize(once), "input: %q", input)
	}
}
