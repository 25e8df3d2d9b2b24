package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookship/internal/book"
)

func TestSearchIndex_Entries(t *testing.T) {
	outDir := renderBook(t, map[string]string{
		"src/SUMMARY.md": "[Intro](README.md)\n\n- [Guide](guide.md)\n",
		"src/README.md":  "# Intro\n\nWelcome to the handbook.\n",
		"src/guide.md":   "# Guide\n\nHow things work.\n",
	})

	var entries []SearchEntry
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, outDir, "searchindex.json")), &entries))
	require.Len(t, entries, 2)

	require.Equal(t, "Intro", entries[0].Title)
	require.Equal(t, "index.html", entries[0].Href)
	require.Contains(t, entries[0].Excerpt, "Welcome to the handbook.")

	require.Equal(t, "1. Guide", entries[1].Title, "numbered chapters keep their section number")
	require.Equal(t, "guide.html", entries[1].Href)
}

func TestSearchIndex_NumberedTitle(t *testing.T) {
	idx := newSearchIndex()
	idx.add(&book.Chapter{Title: "Install", Number: "1.2.", Path: "guide/install.html"}, "body text")
	require.Equal(t, "1.2. Install", idx.entries[0].Title)
	require.Equal(t, "guide/install.html", idx.entries[0].Href)
}

func TestExcerpt_CutsAtWordBreak(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := excerpt(long)
	require.True(t, strings.HasSuffix(got, "..."))
	require.LessOrEqual(t, len([]rune(got)), excerptLen+3)
	require.True(t, strings.HasSuffix(strings.TrimSuffix(got, "..."), "word"), "cut lands on a word break")

	require.Equal(t, "short text", excerpt("short text"))
}
