// Package dedup plans which published posts to delete when several share a title.
package dedup

import (
	"sort"

	"AdobeDigest/internal/domain"
	"AdobeDigest/internal/identity"
)

// Group is one set of posts sharing a normalized title.
type Group struct {
	Title  string
	Keep   domain.RemotePost
	Delete []Deletion
}

// Deletion is a post scheduled for removal and why it lost to Keep.
type Deletion struct {
	Post   domain.RemotePost
	Reason string
}

// Plan lists every duplicate group, ordered by normalized title.
type Plan struct {
	Posts  int
	Groups []Group
}

// Deletions counts the posts the plan would remove.
func (p Plan) Deletions() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Delete)
	}
	return n
}

// Build groups posts by normalized title and keeps, per group, the post with the best slug,
// then the oldest. Titles that occur once are left alone.
func Build(posts []domain.RemotePost) Plan {
	byTitle := map[string][]domain.RemotePost{}
	for _, p := range posts {
		key := identity.NormalizeTitle(p.Title)
		if key == "" {
			continue
		}
		byTitle[key] = append(byTitle[key], p)
	}

	plan := Plan{Posts: len(posts)}
	for title, group := range byTitle {
		if len(group) < 2 {
			continue
		}
		ranked := Rank(group)
		g := Group{Title: title, Keep: ranked[0]}
		for _, p := range ranked[1:] {
			g.Delete = append(g.Delete, Deletion{Post: p, Reason: reason(ranked[0], p)})
		}
		plan.Groups = append(plan.Groups, g)
	}

	sort.Slice(plan.Groups, func(i, j int) bool {
		return plan.Groups[i].Title < plan.Groups[j].Title
	})
	return plan
}

// Rank orders posts best first: slug quality ascending, then publish date ascending.
// A post without a parsed date ranks after dated ones; two undated posts compare their raw
// published strings, empty last. Equal posts keep their input order.
func Rank(posts []domain.RemotePost) []domain.RemotePost {
	ranked := append([]domain.RemotePost(nil), posts...)
	sort.SliceStable(ranked, func(i, j int) bool {
		qi, qj := quality(ranked[i]), quality(ranked[j])
		if qi != qj {
			return qi < qj
		}
		return older(ranked[i], ranked[j])
	})
	return ranked
}

func older(a, b domain.RemotePost) bool {
	za, zb := a.PublishedAt.IsZero(), b.PublishedAt.IsZero()
	switch {
	case !za && !zb:
		return a.PublishedAt.Before(b.PublishedAt)
	case za != zb:
		return zb
	case a.Published == "" || b.Published == "":
		return a.Published != "" && b.Published == ""
	default:
		return a.Published < b.Published
	}
}

func quality(p domain.RemotePost) int {
	return identity.SlugQuality(identity.Slug(p.URL))
}

func reason(keep, drop domain.RemotePost) string {
	switch {
	case quality(drop) == 2:
		return "generated hex slug"
	case quality(drop) > quality(keep):
		return "numeric slug"
	case older(keep, drop):
		return "newer copy"
	default:
		return "duplicate title"
	}
}
