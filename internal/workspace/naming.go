package workspace

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// maxSlugLen bounds the title-derived part of a branch or directory name.
const maxSlugLen = 30

//go:embed keywords.yaml
var keywordsYAML []byte

var (
	keywordOnce sync.Once
	keywords    map[string]string
	keywordKeys []string
)

// loadKeywords parses the embedded translation table once. Keys are
// applied longest-first so compound terms win over their parts.
func loadKeywords() {
	keywordOnce.Do(func() {
		keywords = make(map[string]string)
		// The table ships with the binary; a parse failure here is a
		// build defect, not a runtime condition.
		if err := yaml.Unmarshal(keywordsYAML, &keywords); err != nil {
			keywords = map[string]string{}
		}
		keywordKeys = make([]string, 0, len(keywords))
		for k := range keywords {
			keywordKeys = append(keywordKeys, k)
		}
		sort.Slice(keywordKeys, func(i, j int) bool {
			if len(keywordKeys[i]) != len(keywordKeys[j]) {
				return len(keywordKeys[i]) > len(keywordKeys[j])
			}
			return keywordKeys[i] < keywordKeys[j]
		})
	})
}

// Slug derives a filesystem- and branch-safe name from a task id and
// title, such as "a1b2c3d4-fix-oauth-login". Non-ASCII text is folded to
// ASCII where possible, then translated through the keyword table; when
// nothing printable survives, a short content hash of the title stands in
// so two different titles never collide on an empty slug.
func Slug(taskID, title string) string {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}

	s := slugify(translateKeywords(foldASCII(title)))
	if s == "" {
		s = hashSlug(title)
	}
	if short == "" {
		return s
	}
	return short + "-" + s
}

// foldASCII decomposes accented characters and strips combining marks, so
// "café résumé" folds to "cafe resume". Runes with no ASCII decomposition
// pass through unchanged for the keyword pass to handle.
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// translateKeywords replaces known non-Latin terms with their English
// counterparts. Terms not in the table are left for slugify to drop.
func translateKeywords(s string) string {
	if isASCII(s) {
		return s
	}
	loadKeywords()
	for _, k := range keywordKeys {
		if strings.Contains(s, k) {
			s = strings.ReplaceAll(s, k, " "+keywords[k]+" ")
		}
	}
	return s
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// slugify lowercases, converts separators to dashes, drops everything
// outside [a-z0-9-], bounds the length and trims trailing dashes.
func slugify(text string) string {
	slug := strings.ToLower(text)
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return strings.Trim(slug, "-")
}

// hashSlug produces a stable 8-hex-digit stand-in for titles that slug to
// nothing.
func hashSlug(title string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	return fmt.Sprintf("t%08x", h.Sum32())
}
