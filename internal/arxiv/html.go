package arxiv

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	mainContainerIdentifierConstant = "main"
	identifierAttributeConstant     = "id"
	textLineSeparatorConstant       = "\n"
	previewSeparatorConstant        = "\n\n"
	previewHTMLRuneLimitConstant    = 1500
	previewRuneLimitConstant        = 2000
)

// ExtractArticleText returns the readable text of an arXiv HTML rendering.
// The <article> element is preferred, then div#main, then the whole document.
// Text nodes are trimmed and joined with newlines; script and style content is skipped.
func ExtractArticleText(document io.Reader) (string, error) {
	rootNode, parseError := html.Parse(document)
	if parseError != nil {
		return "", parseError
	}

	contentNode := findNode(rootNode, isArticleNode)
	if contentNode == nil {
		contentNode = findNode(rootNode, isMainContainerNode)
	}
	if contentNode == nil {
		contentNode = rootNode
	}

	fragments := make([]string, 0)
	collectText(contentNode, &fragments)
	return strings.Join(fragments, textLineSeparatorConstant), nil
}

// BuildPreview combines the abstract with the beginning of the full text for the relevance filter.
// The result never exceeds 2000 characters.
func BuildPreview(abstract string, htmlText string) string {
	preview := abstract
	if len(htmlText) > 0 {
		preview = abstract + previewSeparatorConstant + truncateRunes(htmlText, previewHTMLRuneLimitConstant)
	}
	return truncateRunes(preview, previewRuneLimitConstant)
}

func isArticleNode(node *html.Node) bool {
	return node.Type == html.ElementNode && node.DataAtom == atom.Article
}

func isMainContainerNode(node *html.Node) bool {
	if node.Type != html.ElementNode || node.DataAtom != atom.Div {
		return false
	}
	for _, attribute := range node.Attr {
		if attribute.Key == identifierAttributeConstant && attribute.Val == mainContainerIdentifierConstant {
			return true
		}
	}
	return false
}

func findNode(node *html.Node, matches func(*html.Node) bool) *html.Node {
	if matches(node) {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findNode(child, matches); found != nil {
			return found
		}
	}
	return nil
}

func collectText(node *html.Node, fragments *[]string) {
	switch node.Type {
	case html.TextNode:
		if trimmed := strings.TrimSpace(node.Data); len(trimmed) > 0 {
			*fragments = append(*fragments, trimmed)
		}
		return
	case html.ElementNode:
		if node.DataAtom == atom.Script || node.DataAtom == atom.Style || node.DataAtom == atom.Noscript {
			return
		}
	case html.CommentNode:
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, fragments)
	}
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
