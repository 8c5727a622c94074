package clips

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

// Strategy names, also used as metric labels.
const (
	StrategyDirect     = "direct"
	StrategyStreamff   = "streamff"
	StrategyStreamin   = "streamin"
	StrategyDubz       = "dubz"
	StrategyStreamable = "streamable"
	StrategyMirrors    = "mirrors"
)

const mp4Ext = ".mp4"

// Target is what a strategy extracts a clip from.
type Target struct {
	URL      *url.URL
	MediaURL string
}

// Strategy extracts a direct playable link for one family of hosts.
type Strategy interface {
	Name() string
	Matches(u *url.URL) bool
	Extract(ctx context.Context, c Client, t Target) (string, error)
}

type hostStrategy struct {
	name    string
	labels  []string
	extract func(ctx context.Context, c Client, u *url.URL) (string, error)
}

func (s hostStrategy) Name() string { return s.name }

// Matches reports whether any dot-separated label of the host equals one of
// the strategy labels, so streamff.co and www.streamff.com both match.
func (s hostStrategy) Matches(u *url.URL) bool {
	for _, label := range strings.Split(strings.ToLower(u.Hostname()), ".") {
		for _, want := range s.labels {
			if label == want {
				return true
			}
		}
	}

	return false
}

func (s hostStrategy) Extract(ctx context.Context, c Client, t Target) (string, error) {
	return s.extract(ctx, c, t.URL)
}

// directStrategy accepts links that already point at a video file, and posts
// that carry a host-native media URL.
type directStrategy struct{}

func (directStrategy) Name() string { return StrategyDirect }

func (directStrategy) Matches(u *url.URL) bool {
	return isMP4(u)
}

func (directStrategy) Extract(ctx context.Context, c Client, t Target) (string, error) {
	link := t.MediaURL
	if isMP4(t.URL) || link == "" {
		link = t.URL.String()
	}

	if err := c.Validate(ctx, link); err != nil {
		return "", err
	}

	return link, nil
}

// Strategies returns the enabled host strategies in dispatch order.
func Strategies(hosts config.HostToggles) []Strategy {
	var out []Strategy

	if hosts.Direct {
		out = append(out, directStrategy{})
	}

	if hosts.Streamff {
		out = append(out, hostStrategy{name: StrategyStreamff, labels: []string{"streamff"}, extract: extractStreamff})
	}

	if hosts.Streamin {
		out = append(out, hostStrategy{name: StrategyStreamin, labels: []string{"streamin"}, extract: extractStreamin})
	}

	if hosts.Dubz {
		out = append(out, hostStrategy{name: StrategyDubz, labels: []string{"dubz"}, extract: extractDubz})
	}

	if hosts.Streamable {
		out = append(out, hostStrategy{name: StrategyStreamable, labels: []string{"streamable"}, extract: extractStreamable})
	}

	if hosts.Mirrors {
		out = append(out, hostStrategy{
			name:    StrategyMirrors,
			labels:  []string{"streamja", "streamye", "streamgg", "streamvi", "streamwo"},
			extract: extractFromPage,
		})
	}

	return out
}

func extractStreamff(ctx context.Context, c Client, u *url.URL) (string, error) {
	id := videoID(u)

	guesses := []string{
		"https://cdn.streamff.one/" + id + mp4Ext,
		"https://ffedge.streamff.com/uploads/" + id + mp4Ext,
	}

	if link, ok := firstValid(ctx, c, guesses); ok {
		return link, nil
	}

	return extractFromPage(ctx, c, u)
}

func extractStreamin(ctx context.Context, c Client, u *url.URL) (string, error) {
	id := videoID(u)

	guesses := []string{
		"https://streamin.fun/uploads/" + id + mp4Ext,
		"https://streamin.me/uploads/" + id + mp4Ext,
	}

	if link, ok := firstValid(ctx, c, guesses); ok {
		return link, nil
	}

	return extractFromPage(ctx, c, u)
}

func extractDubz(ctx context.Context, c Client, u *url.URL) (string, error) {
	link := "https://cdn.squeelab.com/guest/videos/" + videoID(u) + mp4Ext

	if err := c.Validate(ctx, link); err != nil {
		return "", err
	}

	return link, nil
}

func extractStreamable(ctx context.Context, c Client, u *url.URL) (string, error) {
	body, err := c.Page(ctx, u.String())
	if err != nil {
		return "", err
	}

	links := pageLinks(body, u)

	candidates := make([]string, 0, len(links.sources)+len(links.videos))
	for _, l := range append(links.sources, links.videos...) {
		candidates = append(candidates, cleanStreamable(l))
	}

	if link, ok := firstValid(ctx, c, candidates); ok {
		return link, nil
	}

	return "", fmt.Errorf("%s: %w", u, coreerrors.ErrNoClipFound)
}

// extractFromPage reads og:video metadata first, then video sources.
func extractFromPage(ctx context.Context, c Client, u *url.URL) (string, error) {
	body, err := c.Page(ctx, u.String())
	if err != nil {
		return "", err
	}

	links := pageLinks(body, u)

	candidates := make([]string, 0, len(links.meta)+len(links.sources)+len(links.videos))
	candidates = append(candidates, links.meta...)
	candidates = append(candidates, links.sources...)
	candidates = append(candidates, links.videos...)

	if link, ok := firstValid(ctx, c, candidates); ok {
		return link, nil
	}

	return "", fmt.Errorf("%s: %w", u, coreerrors.ErrNoClipFound)
}

func firstValid(ctx context.Context, c Client, links []string) (string, bool) {
	seen := make(map[string]bool, len(links))

	for _, link := range links {
		if link == "" || seen[link] {
			continue
		}

		seen[link] = true

		if ctx.Err() != nil {
			return "", false
		}

		if err := c.Validate(ctx, link); err == nil {
			return link, true
		}
	}

	return "", false
}

// videoID is the path segment after /v/, or the last path segment.
func videoID(u *url.URL) string {
	p := strings.TrimSuffix(u.Path, "/")

	if i := strings.Index(p, "/v/"); i >= 0 {
		return strings.SplitN(p[i+len("/v/"):], "/", 2)[0]
	}

	return path.Base(p)
}

func isMP4(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), mp4Ext)
}

// cleanStreamable drops the #t= start-offset fragment.
func cleanStreamable(link string) string {
	if i := strings.Index(link, "#t="); i >= 0 {
		return link[:i]
	}

	return link
}

type foundLinks struct {
	meta    []string
	sources []string
	videos  []string
}

var ogVideoProperties = []string{"og:video:secure_url", "og:video"}

// pageLinks collects candidate video links from an HTML page: og:video meta
// tags in preference order, <source> elements inside <video>, and <video src>.
func pageLinks(body []byte, base *url.URL) foundLinks {
	var out foundLinks

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return out
	}

	meta := make(map[string]string, len(ogVideoProperties))

	var walk func(n *html.Node, inVideo bool)

	walk = func(n *html.Node, inVideo bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop := attr(n, "property")
				if prop == "" {
					prop = attr(n, "name")
				}

				if content := attr(n, "content"); content != "" {
					if _, dup := meta[prop]; !dup {
						meta[prop] = content
					}
				}
			case "video":
				inVideo = true

				if src := attr(n, "src"); src != "" {
					out.videos = append(out.videos, resolveRef(base, src))
				}
			case "source":
				if src := attr(n, "src"); src != "" && inVideo {
					out.sources = append(out.sources, resolveRef(base, src))
				}
			}
		}

		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inVideo)
		}
	}

	walk(doc, false)

	for _, prop := range ogVideoProperties {
		if v, ok := meta[prop]; ok {
			out.meta = append(out.meta, resolveRef(base, v))
		}
	}

	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}

	return ""
}

// resolveRef resolves ref against the page URL. Protocol-relative links are
// always upgraded to https.
func resolveRef(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	return base.ResolveReference(u).String()
}
