// Package render builds presentation markup from a decrypted content bundle
// without ever interpreting bundle fields as markup. Every field becomes
// inert text or an escaped attribute value; link and media URLs must pass a
// fixed host allowlist or they are replaced with a safe placeholder. This
// holds even though the bundle's nominal source is trusted: a corrupted
// build artifact must not become a script-injection or redirect vector.
package render

import (
	"html"
	"strings"

	"github.com/jmcleod/pagegate/bundle"
)

// Placeholder replaces URLs that fail the allowlist check.
const Placeholder = "#"

// Node is an inert markup element. Text and attribute values are escaped at
// serialization time; nothing in a Node is ever parsed as markup.
type Node struct {
	Tag      string
	Text     string
	Attrs    []Attr
	Children []*Node
}

// Attr is one attribute on a Node.
type Attr struct {
	Key   string
	Value string
}

func elem(tag string, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

func text(tag, s string) *Node {
	return &Node{Tag: tag, Text: s}
}

func (n *Node) attr(key, value string) *Node {
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})
	return n
}

var voidTags = map[string]bool{"img": true, "br": true, "hr": true}

// HTML serializes the node tree, escaping all text and attribute values.
func (n *Node) HTML() string {
	var sb strings.Builder
	n.writeTo(&sb)
	return sb.String()
}

func (n *Node) writeTo(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, a := range n.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Value))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	if voidTags[n.Tag] {
		return
	}
	sb.WriteString(html.EscapeString(n.Text))
	for _, c := range n.Children {
		c.writeTo(sb)
	}
	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
}

// Renderer renders bundles against a fixed set of permitted URL hosts.
type Renderer struct {
	allowedHosts map[string]bool
}

// New creates a Renderer. allowedHosts are exact host names permitted in
// hyperlink and media URLs; everything else renders as Placeholder.
func New(allowedHosts []string) *Renderer {
	r := &Renderer{allowedHosts: make(map[string]bool, len(allowedHosts))}
	for _, h := range allowedHosts {
		r.allowedHosts[strings.ToLower(h)] = true
	}
	return r
}

// Render builds the node tree for a decrypted bundle.
func (r *Renderer) Render(b *bundle.Bundle) *Node {
	root := elem("div")
	root.attr("class", "gated-content")
	for i := range b.Sections {
		root.Children = append(root.Children, r.renderSection(&b.Sections[i]))
	}
	return root
}

func (r *Renderer) renderSection(s *bundle.Section) *Node {
	sec := elem("section")
	sec.attr("id", s.ID)
	if s.Title != "" {
		sec.Children = append(sec.Children, text("h2", s.Title))
	}

	switch s.Kind {
	case bundle.KindPricing:
		sec.Children = append(sec.Children, r.renderPricing(s.Pricing))
	case bundle.KindChecklist:
		sec.Children = append(sec.Children, r.renderChecklist(s.Checklist))
	case bundle.KindGallery:
		sec.Children = append(sec.Children, r.renderGallery(s.Gallery))
	case bundle.KindRaw:
		// Raw JSON is shown verbatim as text, never injected as markup.
		sec.Children = append(sec.Children, text("pre", string(s.Raw)))
	}
	return sec
}

func (r *Renderer) renderPricing(p *bundle.PricingTable) *Node {
	list := elem("ul")
	list.attr("class", "pricing")
	for _, tier := range p.Tiers {
		item := elem("li")
		if tier.Highlight {
			item.attr("class", "highlight")
		}
		item.Children = append(item.Children, text("strong", tier.Name))
		price := tier.Price
		if tier.Unit != "" {
			price += "/" + tier.Unit
		}
		item.Children = append(item.Children, text("span", price))
		for _, f := range tier.Features {
			item.Children = append(item.Children, text("em", f))
		}
		list.Children = append(list.Children, item)
	}
	return list
}

func (r *Renderer) renderChecklist(c *bundle.Checklist) *Node {
	wrap := elem("div")
	wrap.attr("class", "checklist")
	for _, group := range c.Groups {
		wrap.Children = append(wrap.Children, text("h3", group.Name))
		list := elem("ul")
		for _, item := range group.Items {
			list.Children = append(list.Children, text("li", item))
		}
		wrap.Children = append(wrap.Children, list)
	}
	return wrap
}

func (r *Renderer) renderGallery(g *bundle.GalleryMeta) *Node {
	grid := elem("div")
	grid.attr("class", "gallery-grid")
	for _, ref := range g.Galleries {
		card := elem("a")
		card.attr("href", r.checkURL(ref.URL))
		card.attr("rel", "noopener")
		if ref.CoverURL != "" {
			cover := elem("img")
			cover.attr("src", r.checkURL(ref.CoverURL))
			cover.attr("alt", ref.Title)
			card.Children = append(card.Children, cover)
		}
		card.Children = append(card.Children, text("span", ref.Title))
		if ref.Subtitle != "" {
			card.Children = append(card.Children, text("small", ref.Subtitle))
		}
		if ref.Date != "" {
			card.Children = append(card.Children, text("time", ref.Date))
		}
		grid.Children = append(grid.Children, card)
	}
	return grid
}
