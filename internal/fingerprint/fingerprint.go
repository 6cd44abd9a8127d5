// Package fingerprint reduces a page snapshot to a stable content digest
// used for state-change detection. Two snapshots with the same normalized
// structure and visible text always produce the same fingerprint, and
// volatile render-to-render noise (randomized ids, inline animation state)
// never changes it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"

	"github.com/nbenliogludev/softlight-agent/internal/browser"
)

// Fingerprint is an opaque hex digest. Only equality comparison is
// meaningful; content is not recoverable from it.
type Fingerprint string

// Tags whose entire subtree is noise for visual-state purposes.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Attributes that change on every render without any meaningful UI
// change: generated element ids, framework bookkeeping, inline style
// (animations mutate it constantly) and the aria attributes that
// reference generated ids.
var volatileAttrs = map[string]bool{
	"id":                    true,
	"style":                 true,
	"for":                   true,
	"aria-describedby":      true,
	"aria-labelledby":       true,
	"aria-owns":             true,
	"aria-controls":         true,
	"aria-activedescendant": true,
	"nonce":                 true,
	"transform":             true,
}

// Compute fingerprints a snapshot. Pure and deterministic; no side effects.
func Compute(snap *browser.PageSnapshot) Fingerprint {
	normalized := Normalize(snap.HTML)
	sum := sha256.Sum256([]byte(normalized))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Normalize reduces raw markup to an order-preserving textual form of tag
// structure plus visible text. Script/style subtrees are dropped entirely,
// volatile attributes are stripped, and whitespace is collapsed. Exported
// because the stability guarantees are asserted directly in tests.
func Normalize(rawHTML string) string {
	tok := html.NewTokenizer(strings.NewReader(rawHTML))

	var sb strings.Builder
	skipDepth := 0

	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			// io.EOF or malformed tail; either way we hash what we have.
			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			t := tok.Token()
			name := strings.ToLower(t.Data)
			if skippedTags[name] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			sb.WriteByte('<')
			sb.WriteString(name)
			for _, attr := range t.Attr {
				key := strings.ToLower(attr.Key)
				if volatileAttrs[key] || strings.HasPrefix(key, "data-") {
					continue
				}
				sb.WriteByte(' ')
				sb.WriteString(key)
				sb.WriteByte('=')
				sb.WriteString(collapseSpace(attr.Val))
			}
			sb.WriteByte('>')

		case html.EndTagToken:
			t := tok.Token()
			name := strings.ToLower(t.Data)
			if skippedTags[name] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			sb.WriteString("</")
			sb.WriteString(name)
			sb.WriteByte('>')

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := collapseSpace(string(tok.Text()))
			if text != "" {
				sb.WriteString(text)
			}
		}
	}

	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
