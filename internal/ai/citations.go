package ai

import (
	"regexp"
	"sort"
	"strings"
)

var (
	domainRe   = regexp.MustCompile(`^https?://(?:www\.)?([^/]+).*$`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	sourcesHdr = "\n\n##Sources:\n"
)

// Domain reduces a URL to its host without a leading "www.". Inputs that do
// not look like http(s) URLs are returned unchanged.
func Domain(u string) string {
	return domainRe.ReplaceAllString(u, "$1")
}

// FormatCitations renders the Sources block from annotation URLs and the
// markdown links found in text. Lines have the form "- [label](url)"; they are
// de-duplicated, sorted, and separated by blank lines. It returns "" when
// there is nothing to cite.
func FormatCitations(annotationURLs []string, text string) string {
	set := map[string]struct{}{}
	for _, u := range annotationURLs {
		set["- ["+Domain(u)+"]("+u+")\n"] = struct{}{}
	}
	for _, m := range mdLinkRe.FindAllStringSubmatch(text, -1) {
		set["- ["+m[1]+"]("+m[2]+")\n"] = struct{}{}
	}
	if len(set) == 0 {
		return ""
	}
	lines := make([]string, 0, len(set))
	for l := range set {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return sourcesHdr + strings.Join(lines, "\n")
}
