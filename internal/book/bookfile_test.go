package book

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBookFile_FullManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := `[book]
title = "Example Handbook"
authors = ["Docs Team"]
description = "All the things"
language = "sv"
src = "content"

[build]
create-missing = true

[output.html]
theme = "theme"
default-theme = "dark"
git-repository-url = "https://github.com/inful/handbook"
edit-url-template = "https://github.com/inful/handbook/edit/master/book/{path}"
cname = "docs.example.com"
additional-css = ["custom.css"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.toml"), []byte(manifest), 0o600))

	bf, err := LoadBookFile(dir)
	require.NoError(t, err)
	require.Equal(t, "Example Handbook", bf.Book.Title)
	require.Equal(t, []string{"Docs Team"}, bf.Book.Authors)
	require.Equal(t, "sv", bf.Book.Language)
	require.Equal(t, "content", bf.Book.Src)
	require.True(t, bf.Build.CreateMissing)
	require.Equal(t, "dark", bf.Output.HTML.DefaultTheme)
	require.Equal(t, "docs.example.com", bf.Output.HTML.CNAME)
	require.Equal(t, []string{"custom.css"}, bf.Output.HTML.AdditionalCSS)
}

func TestLoadBookFile_MissingManifestUsesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "handbook")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	bf, err := LoadBookFile(dir)
	require.NoError(t, err)
	require.Equal(t, "handbook", bf.Book.Title)
	require.Equal(t, "en", bf.Book.Language)
	require.Equal(t, "src", bf.Book.Src)
	require.Equal(t, "light", bf.Output.HTML.DefaultTheme)
}

func TestLoadBookFile_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.toml"), []byte("[book\ntitle="), 0o600))
	_, err := LoadBookFile(dir)
	require.Error(t, err)
}

func TestLocateBookDir_Configured(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "handbook"), 0o750))

	dir, err := LocateBookDir(root, "docs/handbook")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "docs", "handbook"), dir)

	_, err = LocateBookDir(root, "nope")
	require.Error(t, err)
}

func TestLocateBookDir_ProbesConventionalLayout(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "book")
	require.NoError(t, os.MkdirAll(filepath.Join(bookDir, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "book.toml"), []byte("[book]\n"), 0o600))

	dir, err := LocateBookDir(root, "")
	require.NoError(t, err)
	require.Equal(t, bookDir, dir)
}

func TestLocateBookDir_RootItself(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "SUMMARY.md"), []byte("- [A](a.md)\n"), 0o600))

	dir, err := LocateBookDir(root, "")
	require.NoError(t, err)
	require.Equal(t, root, dir)
}

func TestLocateBookDir_NothingFound(t *testing.T) {
	_, err := LocateBookDir(t.TempDir(), "")
	require.Error(t, err)
}
