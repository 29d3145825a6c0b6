package publish

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/cespare/xxhash/v2"
)

// DefaultMaxPathLength is used when no limit is configured.
const DefaultMaxPathLength = 240

const artifactExt = ".html"

// PathBuilder lays out artifacts as site/section/{keyPrefix}_{page}.html.
// Paths are slash-separated and relative to the artifact store root.
type PathBuilder struct {
	// Root is the store root; it only counts toward MaxLength.
	Root      string
	MaxLength int
}

// Dir returns the directory for site and section.
func (p PathBuilder) Dir(site, section string) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{site, section} {
		if s = sanitize(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "."
	}
	return path.Join(parts...)
}

// File returns the artifact path for key and page inside dir.
// A key that is not a safe file name keeps its sanitized form followed by
// "~" and the xxhash of the key, so distinct keys never share a file.
// If the full path would exceed MaxLength, the key prefix is replaced by the
// xxhash alone. Different keys may then share a file.
func (p PathBuilder) File(dir, key, page string) string {
	page = sanitize(page)
	if page == "" {
		page = "index"
	}
	prefix := sanitize(key)
	if prefix != key {
		prefix += "~" + hashKey(key)
	}
	full := path.Join(dir, prefix+"_"+page+artifactExt)

	max := p.MaxLength
	if max <= 0 {
		max = DefaultMaxPathLength
	}
	if len(filepath.Join(p.Root, filepath.FromSlash(full))) > max {
		full = path.Join(dir, hashKey(key)+"_"+page+artifactExt)
	}
	return full
}

func hashKey(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// Location returns the site and section target is published under.
// State settings win over the request.
func Location(req *domain.Request, target *domain.State) (site, section string) {
	site, section = req.Site, req.Section
	if s := target.Publish; s != nil {
		if s.Site != "" {
			site = s.Site
		}
		if s.Section != "" {
			section = s.Section
		}
	}
	return strings.TrimSpace(site), strings.TrimSpace(section)
}

// sanitize keeps characters that are safe in a single path element.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == '.':
			return r
		}
		return '-'
	}, strings.Trim(s, "."))
}
