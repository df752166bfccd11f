// Package ldprune edits structured-data blocks in static HTML. Pages served
// without a browser still carry ad and tracking payloads in their
// <script type="application/ld+json"> blocks; Prune applies the same dotted
// path rules the live patches use, without touching anything else in the
// document.
package ldprune

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagepatch/pathprune"
)

// Prune parses htmlSrc, prunes every JSON-LD block per prunePaths gated by
// requiredPaths, and re-renders the document. Returns the rendered HTML and
// the number of deleted slots. Blocks that fail to decode are left intact —
// malformed structured data is the page's problem, not ours.
//
// The document is re-rendered even when nothing was pruned; callers that
// care about byte identity should check the count first.
func Prune(htmlSrc []byte, prunePaths, requiredPaths []string) ([]byte, int, error) {
	doc, err := html.Parse(bytes.NewReader(htmlSrc))
	if err != nil {
		return nil, 0, fmt.Errorf("ldprune: parse html: %w", err)
	}

	deleted := 0
	for _, script := range ldScripts(doc) {
		text := script.FirstChild
		if text == nil || text.Type != html.TextNode {
			continue
		}

		var root any
		if err := json.Unmarshal([]byte(text.Data), &root); err != nil {
			continue
		}

		n := pathprune.Prune(root, prunePaths, requiredPaths)
		if n == 0 {
			continue
		}

		edited, err := json.Marshal(root)
		if err != nil {
			continue
		}
		text.Data = string(edited)
		deleted += n
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, 0, fmt.Errorf("ldprune: render html: %w", err)
	}
	return buf.Bytes(), deleted, nil
}

// ldScripts collects every <script type="application/ld+json"> element,
// document order.
func ldScripts(doc *html.Node) []*html.Node {
	var scripts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && isLDType(n) {
			scripts = append(scripts, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return scripts
}

func isLDType(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "type" {
			return strings.EqualFold(strings.TrimSpace(attr.Val), "application/ld+json")
		}
	}
	return false
}
