package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/textutil"
)

// hashTextLimit caps each paragraph or list item before hashing.
const hashTextLimit = 200

// ContentHash fingerprints a document by its title, headings and truncated body texts.
func ContentHash(title string, headings, texts []string) string {
	h := sha256.New()
	write := func(kind, value string) {
		h.Write([]byte(kind))
		h.Write([]byte{0})
		h.Write([]byte(value))
		h.Write([]byte{'\n'})
	}

	write("t", textutil.CollapseSpace(title))
	for _, heading := range headings {
		write("h", textutil.CollapseSpace(heading))
	}
	for _, text := range texts {
		text = textutil.CollapseSpace(text)
		if text == "" {
			continue
		}
		write("p", textutil.Truncate(text, hashTextLimit))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// CandidateHash fingerprints the fields a candidate renders into its post body.
func CandidateHash(c domain.Candidate) string {
	headings := make([]string, 0, len(c.Sections))
	var texts []string
	for _, s := range c.Sections {
		if s.Heading != "" {
			headings = append(headings, s.Heading)
		}
		texts = append(texts, s.Lines...)
	}
	texts = append(texts, c.PublishedAt.UTC().Format("2006-01-02"))
	return ContentHash(c.Title, headings, texts)
}

// DocumentHash fingerprints an HTML page from its h1-h3 headings and p/li texts.
func DocumentHash(doc *goquery.Selection) string {
	title := strings.TrimSpace(doc.Find("h1").First().Text())

	var headings []string
	doc.Find("h2, h3").Each(func(_ int, s *goquery.Selection) {
		headings = append(headings, s.Text())
	})

	var texts []string
	doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})

	return ContentHash(title, headings, texts)
}
