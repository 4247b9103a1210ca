package identity

import (
	"strings"

	"AdobeDigest/internal/domain"
)

// KnownSet is the union of identity signals gathered from the tracking store, the live feed
// and local files. A nil *KnownSet knows nothing.
type KnownSet struct {
	ids    map[string]struct{}
	titles map[string]struct{}
	hashes map[string]string
}

// NewKnownSet returns an empty set.
func NewKnownSet() *KnownSet {
	return &KnownSet{
		ids:    map[string]struct{}{},
		titles: map[string]struct{}{},
		hashes: map[string]string{},
	}
}

// AddID records identifiers; empty values are ignored.
func (k *KnownSet) AddID(ids ...string) {
	for _, id := range ids {
		key := idKey(id)
		if key == "" {
			continue
		}
		k.ids[key] = struct{}{}
	}
}

// AddTitle records a post title for the secondary duplicate guard.
func (k *KnownSet) AddTitle(title string) {
	if t := NormalizeTitle(title); t != "" {
		k.titles[t] = struct{}{}
	}
}

// AddHash records the stored content hash of id under source. The id becomes known too.
func (k *KnownSet) AddHash(source, id, hash string) {
	k.AddID(id)
	if hash != "" {
		k.hashes[hashKey(source, id)] = hash
	}
}

// AddRemote records every identifier and the title of a published post.
func (k *KnownSet) AddRemote(post domain.RemotePost) {
	k.AddID(RemoteIDs(post)...)
	k.AddTitle(post.Title)
}

// AddPost records a local post file.
func (k *KnownSet) AddPost(post domain.Post) {
	k.AddID(post.ID)
	k.AddTitle(post.Title)
}

// HasID reports whether id is known.
func (k *KnownSet) HasID(id string) bool {
	if k == nil {
		return false
	}
	_, ok := k.ids[idKey(id)]
	return ok
}

// HasTitle reports whether a post with the same normalized title is known.
func (k *KnownSet) HasTitle(title string) bool {
	if k == nil {
		return false
	}
	_, ok := k.titles[NormalizeTitle(title)]
	return ok
}

// Hash returns the stored content hash of id under source, or "".
func (k *KnownSet) Hash(source, id string) string {
	if k == nil {
		return ""
	}
	return k.hashes[hashKey(source, id)]
}

// Len returns the number of known identifiers.
func (k *KnownSet) Len() int {
	if k == nil {
		return 0
	}
	return len(k.ids)
}

func idKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func hashKey(source, id string) string {
	return source + "\x00" + idKey(id)
}
