package feed

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	nethtml "golang.org/x/net/html"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
)

const linkAnchorText = "[link]"

// AtomSource reads a subreddit Atom/RSS feed. Reddit puts the submitted link
// in the entry content as an anchor labelled [link]; the entry link itself is
// the comments permalink.
type AtomSource struct {
	url       string
	source    domain.Source
	getter    *getter
	parser    *gofeed.Parser
	sanitizer *bluemonday.Policy
}

func NewAtomSource(url string, source domain.Source, opts Options) *AtomSource {
	return &AtomSource{
		url:       url,
		source:    source,
		getter:    newGetter(opts),
		parser:    gofeed.NewParser(),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *AtomSource) Name() domain.Source { return s.source }

func (s *AtomSource) Fetch(ctx context.Context) ([]domain.CandidatePost, error) {
	body, err := s.getter.get(ctx, s.url, acceptFeed)
	if err != nil {
		return nil, err
	}

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	posts := make([]domain.CandidatePost, 0, len(feed.Items))

	for _, item := range feed.Items {
		post, ok := s.convert(item)
		if ok {
			posts = append(posts, post)
		}
	}

	return posts, nil
}

func (s *AtomSource) convert(item *gofeed.Item) (domain.CandidatePost, bool) {
	title := cleanTitle(html.UnescapeString(s.sanitizer.Sanitize(item.Title)))
	if title == "" {
		return domain.CandidatePost{}, false
	}

	link := submittedLink(item.Content)
	if link == "" {
		link = submittedLink(item.Description)
	}

	if link == "" {
		link = item.Link
	}

	if link == "" {
		return domain.CandidatePost{}, false
	}

	return domain.CandidatePost{
		Title:     title,
		URL:       link,
		CreatedAt: itemTime(item),
		Source:    s.source,
		Permalink: item.Link,
	}, true
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}

	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}

	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}

		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// submittedLink returns the href of the [link] anchor in an entry body.
func submittedLink(content string) string {
	if content == "" {
		return ""
	}

	doc, err := nethtml.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}

	var found string

	var walk func(n *nethtml.Node)

	walk = func(n *nethtml.Node) {
		if found != "" {
			return
		}

		if n.Type == nethtml.ElementNode && n.Data == "a" && strings.TrimSpace(nodeText(n)) == linkAnchorText {
			for _, a := range n.Attr {
				if a.Key == "href" {
					found = strings.TrimSpace(a.Val)

					return
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return found
}

func nodeText(n *nethtml.Node) string {
	var sb strings.Builder

	var walk func(n *nethtml.Node)

	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return sb.String()
}

// cleanTitle drops bidi control marks and collapses whitespace.
func cleanTitle(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200e', r == '\u200f', r >= '\u202a' && r <= '\u202e':
			return -1
		default:
			return r
		}
	}, s)

	return strings.Join(strings.Fields(s), " ")
}
