// Package identity derives post identifiers and decides whether fetched items are new.
//
// Identifiers are compared case-insensitively. Each source kind maps its natural key
// through Canonical, and published or local posts are mapped back through PostID and
// RemoteIDs so both sides meet on the same strings.
package identity

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"AdobeDigest/internal/domain"
)

const placeholderSlug = "000000"

var (
	bulletinExpr  = regexp.MustCompile(`(?i)apsb\d{2}-\d{2}`)
	cveExpr       = regexp.MustCompile(`(?i)cve-\d{4}-\d{4,7}`)
	cvePrefixExpr = regexp.MustCompile(`(?i)^cve-\d{4}-\d{4,7}\b`)
	hexSlugExpr   = regexp.MustCompile(`^[0-9a-f]{6}$`)
	digitsExpr    = regexp.MustCompile(`^[0-9]+$`)
)

// Canonical maps a source kind and its natural key onto the identifier stored everywhere.
func Canonical(kind domain.SourceKind, key string) string {
	key = strings.TrimSpace(key)
	switch kind {
	case domain.KindHelpX:
		if code := BulletinCode(key); code != "" {
			return code
		}
		return strings.ToUpper(key)
	case domain.KindNVD:
		if cve := cveExpr.FindString(key); cve != "" {
			return strings.ToUpper(cve)
		}
		return strings.ToUpper(key)
	case domain.KindReleases:
		return strings.ReplaceAll(strings.ToLower(key), ".", "-")
	default:
		return key
	}
}

// BulletinCode returns the uppercased APSBxx-xx code found in s, or "".
func BulletinCode(s string) string {
	return strings.ToUpper(bulletinExpr.FindString(s))
}

// Slug returns the last path segment of rawURL without query, fragment or .html/.md suffix.
func Slug(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	} else {
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}

	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, ".html")
	return strings.TrimSuffix(base, ".md")
}

// IsHexSlug reports whether slug looks platform generated: six lowercase hex characters
// other than the "000000" placeholder.
func IsHexSlug(slug string) bool {
	return slug != placeholderSlug && hexSlugExpr.MatchString(slug)
}

// SlugQuality ranks slugs for duplicate cleanup: 0 human readable, 1 numeric, 2 hex.
func SlugQuality(slug string) int {
	switch {
	case IsHexSlug(slug):
		return 2
	case slug == placeholderSlug, digitsExpr.MatchString(slug):
		return 1
	default:
		return 0
	}
}

// IDsFromSlug lists every identifier a slug can stand for, most specific first.
// Platform-generated hex slugs yield nothing.
func IDsFromSlug(slug string) []string {
	slug = strings.TrimSpace(slug)
	if slug == "" || IsHexSlug(slug) {
		return nil
	}

	var ids []string
	if code := BulletinCode(slug); code != "" {
		ids = append(ids, code)
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(slug), "nist-"); ok {
		if cve := cvePrefixExpr.FindString(rest); cve != "" {
			ids = append(ids, strings.ToUpper(cve))
		}
	}
	ids = append(ids, slug)
	if rest, ok := strings.CutPrefix(slug, "sansec-"); ok && rest != "" && !IsHexSlug(rest) {
		ids = append(ids, rest)
	}
	return ids
}

// PostID derives the identifier of a local post: a product code in the title wins over
// the URL slug, which wins over the filename stem.
func PostID(title, rawURL, file string) string {
	if code := BulletinCode(title); code != "" {
		return code
	}
	if cve := cvePrefixExpr.FindString(strings.TrimSpace(title)); cve != "" {
		return strings.ToUpper(cve)
	}
	if ids := IDsFromSlug(Slug(rawURL)); len(ids) > 0 {
		return ids[0]
	}
	if file == "" {
		return ""
	}
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if ids := IDsFromSlug(stem); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// RemoteIDs lists identifiers a published post is known under.
func RemoteIDs(post domain.RemotePost) []string {
	ids := IDsFromSlug(Slug(post.URL))
	if code := BulletinCode(post.Title); code != "" {
		ids = append(ids, code)
	}
	return ids
}

// NormalizeTitle folds case and surrounding whitespace for title comparison.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// SameTitle reports whether two titles name the same post.
func SameTitle(a, b string) bool {
	return NormalizeTitle(a) == NormalizeTitle(b)
}

// FindLiveURL locates the published URL for id. A post whose own identifiers include id wins;
// otherwise id is searched as a whole token in feed URLs first and titles second, so
// "CVE-2025-1234" does not match "cve-2025-12345".
func FindLiveURL(id string, posts []domain.RemotePost) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(id))
	if needle == "" {
		return "", false
	}

	for _, p := range posts {
		for _, candidate := range RemoteIDs(p) {
			if strings.EqualFold(candidate, needle) {
				return p.URL, true
			}
		}
	}
	for _, p := range posts {
		if containsToken(strings.ToLower(p.URL), needle) {
			return p.URL, true
		}
	}
	for _, p := range posts {
		if containsToken(strings.ToLower(p.Title), needle) {
			return p.URL, true
		}
	}
	return "", false
}

// containsToken reports whether needle occurs in s without a letter or digit on either side.
func containsToken(s, needle string) bool {
	for offset := 0; ; {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(needle)
		if !isWordByte(s, start-1) && !isWordByte(s, end) {
			return true
		}
		offset = start + 1
	}
}

func isWordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
