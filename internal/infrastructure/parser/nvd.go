package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
	"AdobeDigest/internal/scanner"
	"AdobeDigest/internal/throttle"
)

const (
	defaultNVDURL      = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	nvdResultsPerPage  = 100
	nvdDateLayout      = "2006-01-02T15:04:05.000"
	nvdDefaultLookback = 30
	nvdReferenceLimit  = 5
)

var (
	defaultNVDKeywords = []string{"Adobe Commerce", "Magento", "Adobe Experience Manager"}
	nvdProductTerms    = []string{"adobe commerce", "magento", "adobe experience manager", "aem"}
	severityEmoji      = map[string]string{
		"CRITICAL": "🔴",
		"HIGH":     "🟠",
		"MEDIUM":   "🟡",
		"LOW":      "🟢",
	}
)

// NVDScanner queries the NVD CVE API 2.0 for recently modified Adobe vulnerabilities.
type NVDScanner struct {
	fetch   fetcher
	baseURL string
	apiKey  string
	pacer   *throttle.Pacer
}

// NewNVDScanner wires the API endpoint, optional key and the pacer shared by all requests.
func NewNVDScanner(client *http.Client, userAgent, baseURL, apiKey string, pacer *throttle.Pacer) *NVDScanner {
	if baseURL == "" {
		baseURL = defaultNVDURL
	}
	return &NVDScanner{
		fetch:   newFetcher(client, userAgent),
		baseURL: baseURL,
		apiKey:  apiKey,
		pacer:   pacer,
	}
}

// Name identifies the strategy inside the registry.
func (n *NVDScanner) Name() string {
	return string(domain.KindNVD)
}

type nvdResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics    map[string][]nvdMetric `json:"metrics"`
	References []struct {
		URL string `json:"url"`
	} `json:"references"`
}

type nvdMetric struct {
	BaseSeverity string `json:"baseSeverity"`
	CVSSData     struct {
		BaseScore    *float64 `json:"baseScore"`
		BaseSeverity string   `json:"baseSeverity"`
	} `json:"cvssData"`
}

// Scan searches every keyword over the lookback window, following pagination, and keeps
// unknown CVEs whose English description names an Adobe commerce or AEM product.
func (n *NVDScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	keywords := req.Keywords
	if len(keywords) == 0 {
		keywords = defaultNVDKeywords
	}
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = nvdDefaultLookback
	}

	end := req.Now.UTC()
	start := end.AddDate(0, 0, -lookback)

	var results []domain.Candidate
	seen := map[string]struct{}{}
	for _, keyword := range keywords {
		startIndex := 0
		for {
			page, err := n.page(ctx, keyword, start, end, startIndex)
			if err != nil {
				return results, fmt.Errorf("keyword %q: %w", keyword, err)
			}
			if len(page.Vulnerabilities) == 0 {
				break
			}

			for _, v := range page.Vulnerabilities {
				c, ok := n.candidate(v.CVE, req)
				if !ok {
					continue
				}
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				results = append(results, c)
				if req.Limit > 0 && len(results) >= req.Limit {
					return results, nil
				}
			}

			startIndex += len(page.Vulnerabilities)
			if startIndex >= page.TotalResults {
				break
			}
		}
	}

	return results, nil
}

func (n *NVDScanner) page(ctx context.Context, keyword string, start, end time.Time, startIndex int) (nvdResponse, error) {
	var out nvdResponse

	if err := n.pacer.Wait(ctx); err != nil {
		return out, err
	}

	params := url.Values{}
	params.Set("keywordSearch", keyword)
	params.Set("lastModStartDate", start.Format(nvdDateLayout))
	params.Set("lastModEndDate", end.Format(nvdDateLayout))
	params.Set("resultsPerPage", strconv.Itoa(nvdResultsPerPage))
	params.Set("startIndex", strconv.Itoa(startIndex))

	var header http.Header
	if n.apiKey != "" {
		header = http.Header{"apiKey": []string{n.apiKey}}
	}

	body, err := n.fetch.get(ctx, n.baseURL+"?"+params.Encode(), header)
	if err != nil {
		return out, err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode nvd response: %w", err)
	}
	return out, nil
}

func (n *NVDScanner) candidate(cve nvdCVE, req scanner.Request) (domain.Candidate, bool) {
	if cve.ID == "" {
		return domain.Candidate{}, false
	}
	id := identity.Canonical(domain.KindNVD, cve.ID)
	if req.Seen(id) {
		return domain.Candidate{}, false
	}

	var description string
	for _, d := range cve.Descriptions {
		if d.Lang == "en" {
			description = d.Value
			break
		}
	}
	lower := strings.ToLower(description)
	if !containsAny(lower, nvdProductTerms...) {
		return domain.Candidate{}, false
	}

	published := parseNVDTime(cve.Published, req.Now)
	modified := parseNVDTime(cve.LastModified, published)
	score, severity := cvss(cve.Metrics)

	title := id
	if severity != "" {
		title += " (" + severity + ")"
	}
	if score != "" {
		title += " CVSS " + score
	}

	var lead []string
	if severity != "" && score != "" {
		emoji, ok := severityEmoji[severity]
		if !ok {
			emoji = "⚪"
		}
		lead = append(lead, fmt.Sprintf("**%s Severity: %s (CVSS %s)**\n", emoji, severity, score))
	}
	lead = append(lead, description)

	pubDay, modDay := published.Format("2006-01-02"), modified.Format("2006-01-02")
	dates := []string{"**Published:** " + pubDay}
	if pubDay != modDay {
		dates = []string{"**Published:** " + pubDay + "  ", "**Last Modified:** " + modDay + " ⚠️"}
	}

	var refs []string
	for _, r := range cve.References[:min(len(cve.References), nvdReferenceLimit)] {
		refs = append(refs, "- "+r.URL)
	}
	if len(refs) > 0 {
		refs = append([]string{"**References:**"}, refs...)
	}

	tags := []string{"cve", "vulnerability", "nist", "nvd", req.SourceName}
	if containsAny(lower, "adobe commerce", "magento") {
		tags = append(tags, "adobe-commerce", "magento")
	}
	if containsAny(lower, "adobe experience manager", "aem") {
		tags = append(tags, "adobe-experience-manager", "aem")
	}
	tags = append(tags, req.Categories...)
	tags = append(tags, req.Tags...)

	return domain.Candidate{
		ID:          id,
		Source:      req.SourceName,
		Kind:        domain.KindNVD,
		Title:       title,
		Slug:        "nist-" + strings.ToLower(id),
		URL:         "https://nvd.nist.gov/vuln/detail/" + id,
		PublishedAt: modified,
		Categories:  append([]string{"cve", "vulnerability"}, req.Categories...),
		Tags:        tags,
		Severity:    severity,
		Sections: []domain.Section{
			{Lines: lead},
			{Lines: dates},
			{Lines: refs},
		},
		LinkLabel: "View Full CVE Details on NIST NVD",
	}, true
}

// cvss picks the first metric from v3.1, v3.0 then v2.
func cvss(metrics map[string][]nvdMetric) (score, severity string) {
	for _, key := range []string{"cvssMetricV31", "cvssMetricV30", "cvssMetricV2"} {
		list := metrics[key]
		if len(list) == 0 {
			continue
		}
		m := list[0]
		if m.CVSSData.BaseScore != nil {
			score = strconv.FormatFloat(*m.CVSSData.BaseScore, 'f', 1, 64)
		}
		severity = m.CVSSData.BaseSeverity
		if severity == "" {
			severity = m.BaseSeverity
		}
		return score, strings.ToUpper(severity)
	}
	return "", ""
}

func parseNVDTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return fallback
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
