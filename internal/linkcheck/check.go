package linkcheck

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/bookship/internal/logfields"
)

// Issue is one broken reference found in the rendered site.
type Issue struct {
	Page   string // page the link appears on
	URL    string // raw link destination
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Page, i.URL, i.Reason)
}

// Report is the outcome of checking a rendered site.
type Report struct {
	Pages    int
	Checked  int    // intra-site references verified
	External []Link // off-site URLs, recorded but not fetched
	Issues   []Issue
}

// Ok reports whether the site had no broken references.
func (r *Report) Ok() bool { return len(r.Issues) == 0 }

// Check walks every rendered page under siteDir and verifies its
// references. Whether issues fail the surrounding run is the caller's call;
// each one is logged as a warning here.
func Check(siteDir string) (*Report, error) {
	pages, err := collectPages(siteDir)
	if err != nil {
		return nil, err
	}

	report := &Report{Pages: len(pages)}
	for _, page := range sortedKeys(pages) {
		for _, link := range pages[page].links {
			checkLink(siteDir, link, pages, report)
		}
	}

	for _, issue := range report.Issues {
		slog.Warn("Broken link",
			logfields.Path(issue.Page),
			logfields.URL(issue.URL),
			slog.String("reason", issue.Reason))
	}
	slog.Debug("Link check finished",
		logfields.Count(report.Checked),
		slog.Int("pages", report.Pages),
		slog.Int("external", len(report.External)),
		slog.Int("issues", len(report.Issues)))
	return report, nil
}

// collectPages parses every HTML file under siteDir up front, so fragment
// targets are known regardless of check order.
func collectPages(siteDir string) (map[string]*pageData, error) {
	pages := make(map[string]*pageData)
	err := filepath.WalkDir(siteDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".html") {
			return nil
		}
		rel, err := filepath.Rel(siteDir, p)
		if err != nil {
			return err
		}
		file, err := os.Open(p) // #nosec G304 -- walking the rendered output
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		data, err := extractPage(file, filepath.ToSlash(rel))
		_ = file.Close()
		if err != nil {
			return err
		}
		pages[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rendered site: %w", err)
	}
	return pages, nil
}

// checkLink verifies one extracted link, appending to the report.
func checkLink(siteDir string, link Link, pages map[string]*pageData, report *Report) {
	if skipLink(link.URL) {
		return
	}

	u, err := url.Parse(link.URL)
	if err != nil {
		report.Issues = append(report.Issues, Issue{Page: link.Page, URL: link.URL, Reason: "unparseable URL"})
		return
	}
	if isExternal(u) {
		report.External = append(report.External, link)
		return
	}

	report.Checked++

	target := resolveTarget(link.Page, u.Path)
	if target == "" {
		report.Issues = append(report.Issues, Issue{Page: link.Page, URL: link.URL, Reason: "target outside the site"})
		return
	}

	if u.Path != "" {
		if !targetExists(siteDir, pages, target) {
			report.Issues = append(report.Issues, Issue{Page: link.Page, URL: link.URL, Reason: "target does not exist"})
			return
		}
	}

	if u.Fragment != "" {
		data, ok := pages[target]
		if !ok {
			// Fragment on a non-page target (an asset) cannot be checked.
			return
		}
		if !data.ids[u.Fragment] {
			report.Issues = append(report.Issues, Issue{
				Page:   link.Page,
				URL:    link.URL,
				Reason: fmt.Sprintf("no element with id %q on %s", u.Fragment, target),
			})
		}
	}
}

// resolveTarget maps a link path to a site-relative file path. Empty paths
// (bare fragments) resolve to the page itself, directory paths to their
// index page. Returns "" when the path escapes the site root.
func resolveTarget(page, linkPath string) string {
	if linkPath == "" {
		return page
	}

	var resolved string
	if strings.HasPrefix(linkPath, "/") {
		resolved = path.Clean(strings.TrimPrefix(linkPath, "/"))
	} else {
		resolved = path.Join(path.Dir(page), linkPath)
	}
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return ""
	}

	if strings.HasSuffix(linkPath, "/") || resolved == "." {
		resolved = path.Join(resolved, "index.html")
	}
	return resolved
}

// targetExists checks the parsed page set first, then the filesystem for
// non-HTML assets.
func targetExists(siteDir string, pages map[string]*pageData, target string) bool {
	if _, ok := pages[target]; ok {
		return true
	}
	info, err := os.Stat(filepath.Join(siteDir, filepath.FromSlash(target)))
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err = os.Stat(filepath.Join(siteDir, filepath.FromSlash(target), "index.html"))
		return err == nil
	}
	return true
}

func sortedKeys(pages map[string]*pageData) []string {
	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
