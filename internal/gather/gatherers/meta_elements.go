// internal/gather/gatherers/meta_elements.go
package gatherers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// MetaElement is one <meta> tag found in the document head.
type MetaElement struct {
	Name      string `json:"name,omitempty"`
	Property  string `json:"property,omitempty"`
	HTTPEquiv string `json:"http_equiv,omitempty"`
	Charset   string `json:"charset,omitempty"`
	Content   string `json:"content,omitempty"`
}

// MetaElements extracts the meta tags from the main document's head.
type MetaElements struct {
	Base
}

func (MetaElements) Name() string { return "meta-elements" }

func (MetaElements) AfterPass(ctx context.Context, pctx *schemas.PassContext, load *schemas.LoadData) (any, error) {
	content, err := fetchMainDocument(ctx, pctx, load)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing document for %s: %w", pctx.URL, err)
	}
	return collectHeadMetas(doc), nil
}

// collectHeadMetas walks the parsed tree and keeps the meta elements that
// live in the head. Meta tags in the body are not part of the page's
// declared metadata and are skipped.
func collectHeadMetas(doc *html.Node) []MetaElement {
	metas := []MetaElement{}
	var walk func(n *html.Node, inHead bool)
	walk = func(n *html.Node, inHead bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				inHead = true
			case atom.Body:
				inHead = false
			case atom.Meta:
				if inHead {
					metas = append(metas, metaFromNode(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inHead)
		}
	}
	walk(doc, false)
	return metas
}

func metaFromNode(n *html.Node) MetaElement {
	var meta MetaElement
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "name":
			meta.Name = strings.ToLower(attr.Val)
		case "property":
			meta.Property = attr.Val
		case "http-equiv":
			meta.HTTPEquiv = attr.Val
		case "charset":
			meta.Charset = attr.Val
		case "content":
			meta.Content = attr.Val
		}
	}
	return meta
}
