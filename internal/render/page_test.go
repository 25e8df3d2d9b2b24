package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteDestination(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"other.md", "other.html"},
		{"other.md#setup", "other.html#setup"},
		{"../intro.md", "../intro.html"},
		{"guide/README.md", "guide/index.html"},
		{"README.md", "index.html"},
		{"notes.MD", "notes.html"},
		{"#fragment", "#fragment"},
		{"https://example.com/page.md", "https://example.com/page.md"},
		{"//cdn.example.com/page.md", "//cdn.example.com/page.md"},
		{"mailto:docs@example.com", "mailto:docs@example.com"},
		{"/site/page.md", "/site/page.md"},
		{"images/logo.png", "images/logo.png"},
		{"plain.html", "plain.html"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, rewriteDestination(tc.in), "destination %q", tc.in)
	}
}

func TestHeadingIDs_Dedup(t *testing.T) {
	ids := newHeadingIDs()
	require.Equal(t, "intro", string(ids.Generate([]byte("Intro"), 0)))
	require.Equal(t, "intro-1", string(ids.Generate([]byte("Intro"), 0)))
	require.Equal(t, "intro-2", string(ids.Generate([]byte("Intro"), 0)))
}

func TestHeadingIDs_PutReserves(t *testing.T) {
	ids := newHeadingIDs()
	ids.Put([]byte("setup"))
	require.Equal(t, "setup-1", string(ids.Generate([]byte("Setup"), 0)))
}

func TestHeadingIDs_EmptyTitle(t *testing.T) {
	ids := newHeadingIDs()
	require.Equal(t, "section", string(ids.Generate([]byte("!!!"), 0)))
	require.Equal(t, "section-1", string(ids.Generate([]byte("???"), 0)))
}

func TestExtractText(t *testing.T) {
	source := []byte("# Title\n\nFirst   paragraph\nwith a wrap.\n\n```\ncode stays out\n```\n\nSecond paragraph.\n")

	r := New()
	_, plain, err := r.renderMarkdown(source)
	require.NoError(t, err)
	require.Contains(t, plain, "First paragraph with a wrap.")
	require.Contains(t, plain, "Second paragraph.")
	require.NotContains(t, plain, "code stays out")
}

func TestRootPrefix(t *testing.T) {
	require.Equal(t, "", rootPrefix("index.html"))
	require.Equal(t, "../", rootPrefix("guide/install.html"))
	require.Equal(t, "../../", rootPrefix("guide/advanced/tuning.html"))
}

func TestEditURL(t *testing.T) {
	require.Equal(t, "", editURL("", "guide/install.md"))
	require.Equal(t,
		"https://example.com/edit/master/src/guide/install.md",
		editURL("https://example.com/edit/master/src/{path}", "guide/install.md"))
}
