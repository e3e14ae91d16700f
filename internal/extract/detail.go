package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsclip/newscrawler/internal/news"
)

const (
	// ThinBodyThreshold marks a fetched page as implausibly short; callers
	// may refetch before parsing.
	ThinBodyThreshold = 200

	// minContentLength triggers the fallback widening passes.
	minContentLength = 100

	minParagraphLength = 10
	paragraphWeight    = 25
	maxTags            = 10
	maxInlineImages    = 5

	// PlaceholderContent is substituted when every extraction step fails.
	PlaceholderContent = "기사 본문을 불러올 수 없습니다."

	defaultAuthor = "편집부"
)

// Candidate body containers, most specific first. No single selector holds
// across page templates, so every match is scored and the best one wins.
var containerSelectors = []string{
	"#articleBody",
	"#article-view-content-div",
	"#newsct_article",
	".article-body",
	".article_body",
	".news-content",
	".article_view",
	"#articeBody",
	"article",
	"#content",
	".content",
}

var noiseSelectors = strings.Join([]string{
	"script",
	"style",
	"noscript",
	"iframe",
	"embed",
	"nav",
	"header",
	"footer",
	"aside",
	".ad", ".ads", ".advertisement", ".banner",
	".share", ".sns", ".social",
	".related", ".relation", ".recommend",
	".copyright", ".promotion", ".reply",
}, ", ")

var authorSelectors = []string{
	".journalist_name",
	".author",
	".byline",
	".writer",
	".reporter",
	"[itemprop=author]",
	".article_info .name",
}

var (
	reporterPattern  = regexp.MustCompile(`([가-힣]{2,4})\s*기자`)
	bracketOnlyLine  = regexp.MustCompile(`^[\[\(【].*[\]\)】]$`)
	sourceBracket    = regexp.MustCompile(`\(([가-힣A-Za-z]+)=([가-힣A-Za-z0-9]+)\)`)
	boilerplateLine  = regexp.MustCompile(`(무단\s*전재|재배포\s*금지|저작권자|Copyrights?|ⓒ|©|▶|※\s*기사\s*제보)`)
	navMarkerLine    = regexp.MustCompile(`^(이전\s*기사|다음\s*기사|목록|TOP)$`)
	lineBreakMarkers = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n")
)

// DetailParser extracts the structured detail record from an article page.
type DetailParser struct {
	siteName string
}

// NewDetailParser builds a parser. siteName is the default source when no
// outlet can be inferred from the page.
func NewDetailParser(siteName string) *DetailParser {
	return &DetailParser{siteName: siteName}
}

// Parse runs the full extraction pipeline over one article page. The result
// always carries non-empty content, author, and source; any parse failure
// inside the pipeline degrades into the placeholder shape instead of
// propagating.
func (p *DetailParser) Parse(html []byte, pageURL string) (detail news.Detail) {
	detail = news.Detail{
		Content: PlaceholderContent,
		Author:  defaultAuthor,
		Source:  p.siteName,
	}
	defer func() {
		if r := recover(); r != nil {
			detail = news.Detail{
				Content: PlaceholderContent,
				Author:  defaultAuthor,
				Source:  p.siteName,
			}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return detail
	}

	meta := extractMeta(doc)
	stripNoise(doc)

	container := p.selectContainer(doc)
	content := extractParagraphs(container)
	if textLength(content) < minContentLength {
		content = widenContent(doc, content, meta.description)
	}
	content = stripBoilerplate(content)

	author := p.extractAuthor(doc, content)
	tags := extractTags(doc, meta.keywords)
	content, source := p.inferSource(content, meta.title)
	content = appendImages(content, container, pageURL)

	if CollapseWhitespace(content) == "" {
		content = PlaceholderContent
	}

	detail.Content = content
	detail.Author = author
	detail.Source = source
	detail.Tags = tags
	return detail
}

type pageMeta struct {
	title       string
	description string
	keywords    string
}

func extractMeta(doc *goquery.Document) pageMeta {
	meta := pageMeta{title: CollapseWhitespace(doc.Find("title").First().Text())}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		content = CollapseWhitespace(content)
		if content == "" {
			return
		}
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")
		switch {
		case property == "og:title" && meta.title == "":
			meta.title = content
		case name == "description" || property == "og:description":
			if meta.description == "" {
				meta.description = content
			}
		case name == "keywords":
			meta.keywords = content
		}
	})
	return meta
}

// stripNoise removes elements whose text would pollute container scoring.
func stripNoise(doc *goquery.Document) {
	doc.Find(noiseSelectors).Remove()
}

// selectContainer scores every candidate container as
// visibleTextLength + paragraphCount*weight and keeps the winner. The
// paragraph term favors elements with many substantial paragraphs over
// elements that are merely long, like boilerplate footers.
func (p *DetailParser) selectContainer(doc *goquery.Document) *goquery.Selection {
	var (
		best      *goquery.Selection
		bestScore int
	)
	for _, selector := range containerSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			score := textLength(s.Text()) + s.Find("p").Length()*paragraphWeight
			if score > bestScore {
				best = s
				bestScore = score
			}
		})
	}
	if best == nil {
		return doc.Find("body").First()
	}
	return best
}

// extractParagraphs turns the container into cleaned paragraph text:
// line breaks become paragraph breaks, short and bracket-only lines are
// dropped, and exact repeats are removed wherever they occur.
func extractParagraphs(container *goquery.Selection) string {
	if container == nil || container.Length() == 0 {
		return ""
	}

	raw, err := container.Html()
	if err != nil {
		raw = container.Text()
	}
	raw = lineBreakMarkers.Replace(raw)

	frag, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return CollapseWhitespace(container.Text())
	}

	var lines []string
	if paragraphs := frag.Find("p"); paragraphs.Length() > 0 {
		paragraphs.Each(func(_ int, s *goquery.Selection) {
			lines = append(lines, strings.Split(s.Text(), "\n")...)
		})
	} else {
		lines = strings.Split(frag.Text(), "\n")
	}

	seen := make(map[string]struct{})
	var kept []string
	for _, line := range lines {
		line = CollapseWhitespace(line)
		if textLength(line) < minParagraphLength || bracketOnlyLine.MatchString(line) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n\n")
}

// widenContent falls back to the longest paragraphs anywhere in the document,
// then to the meta description, when the chosen container came up short.
func widenContent(doc *goquery.Document, content, description string) string {
	var candidates []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := CollapseWhitespace(s.Text())
		if textLength(text) >= minParagraphLength*2 {
			candidates = append(candidates, text)
		}
	})
	if len(candidates) > 0 {
		widened := strings.Join(candidates, "\n\n")
		if textLength(widened) > textLength(content) {
			content = widened
		}
	}
	if textLength(content) < minContentLength && description != "" {
		if content == "" {
			return description
		}
		content = description + "\n\n" + content
	}
	return content
}

// stripBoilerplate drops trailing copyright and navigation lines.
func stripBoilerplate(content string) string {
	lines := strings.Split(content, "\n")
	end := len(lines)
	for end > 0 {
		line := CollapseWhitespace(lines[end-1])
		if line == "" || boilerplateLine.MatchString(line) || navMarkerLine.MatchString(line) {
			end--
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines[:end], "\n"))
}

func (p *DetailParser) extractAuthor(doc *goquery.Document, content string) string {
	for _, selector := range authorSelectors {
		if text := CollapseWhitespace(doc.Find(selector).First().Text()); text != "" {
			if m := reporterPattern.FindStringSubmatch(text); m != nil {
				return m[1] + " 기자"
			}
			return text
		}
	}
	if m := reporterPattern.FindStringSubmatch(content); m != nil {
		return m[1] + " 기자"
	}
	return defaultAuthor
}

func extractTags(doc *goquery.Document, keywords string) []string {
	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		tag = strings.TrimPrefix(CollapseWhitespace(tag), "#")
		if tag == "" || len(tags) >= maxTags {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	doc.Find(".tag a, .tags a, .keyword a, a[rel=tag]").Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})
	for _, kw := range strings.Split(keywords, ",") {
		add(kw)
	}
	return tags
}

// inferSource looks for a "(지역=출처)" bracket in the leading slice of the
// content, or an "출처/" prefix on the meta title. A match against the known
// outlet list becomes the source and the matched fragment is stripped.
func (p *DetailParser) inferSource(content, metaTitle string) (string, string) {
	head := content
	if runes := []rune(head); len(runes) > 120 {
		head = string(runes[:120])
	}
	if m := sourceBracket.FindStringSubmatch(head); m != nil && isKnownOutlet(m[2]) {
		content = CollapseWhitespaceKeepLines(strings.Replace(content, m[0], "", 1))
		return content, m[2]
	}
	if idx := strings.Index(metaTitle, "/"); idx > 0 {
		if outlet := CollapseWhitespace(metaTitle[:idx]); isKnownOutlet(outlet) {
			return content, outlet
		}
	}
	return content, p.siteName
}

func isKnownOutlet(name string) bool {
	for _, outlet := range knownOutlets {
		if strings.EqualFold(outlet, name) {
			return true
		}
	}
	return false
}

// appendImages gathers up to a handful of absolute image URLs from the
// container as inline references.
func appendImages(content string, container *goquery.Selection, pageURL string) string {
	if container == nil || container.Length() == 0 {
		return content
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return content
	}

	var refs []string
	container.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil || src == "" {
			return true
		}
		refs = append(refs, fmt.Sprintf("[이미지: %s]", base.ResolveReference(ref).String()))
		return len(refs) < maxInlineImages
	})
	if len(refs) == 0 {
		return content
	}
	return content + "\n\n" + strings.Join(refs, "\n")
}

// VisibleTextLength measures the rendered text of a page after noise
// stripping, for thin-body detection.
func VisibleTextLength(html []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0
	}
	stripNoise(doc)
	return textLength(CollapseWhitespace(doc.Find("body").Text()))
}

// CollapseWhitespaceKeepLines trims each line but keeps paragraph breaks.
func CollapseWhitespaceKeepLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = CollapseWhitespace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func textLength(s string) int {
	return len([]rune(s))
}
