package arxiv

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	abstractPathMarkerConstant  = "/abs/"
	alternateLinkRelation       = "alternate"
	atomDecodeTemplateConstant  = "failed to parse arXiv feed: %w"
	whitespaceSeparatorConstant = " "
)

// Entry is one paper record returned by the arXiv API.
// ID keeps the version suffix, for example 2510.09212v1.
type Entry struct {
	ID        string
	Title     string
	Summary   string
	Authors   []string
	Link      string
	Published string
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
	Published string       `xml:"published"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href     string `xml:"href,attr"`
	Relation string `xml:"rel,attr"`
	Type     string `xml:"type,attr"`
}

// ParseFeed decodes an Atom document into entries. Entries without an identifier are dropped.
func ParseFeed(document []byte) ([]Entry, error) {
	var feed atomFeed
	if decodeError := xml.Unmarshal(document, &feed); decodeError != nil {
		return nil, fmt.Errorf(atomDecodeTemplateConstant, decodeError)
	}

	entries := make([]Entry, 0, len(feed.Entries))
	for _, feedEntry := range feed.Entries {
		entry := convertAtomEntry(feedEntry)
		if len(entry.ID) == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func convertAtomEntry(feedEntry atomEntry) Entry {
	trimmedIdentifier := strings.TrimSpace(feedEntry.ID)
	paperIdentifier := trimmedIdentifier
	if markerIndex := strings.LastIndex(trimmedIdentifier, abstractPathMarkerConstant); markerIndex >= 0 {
		paperIdentifier = trimmedIdentifier[markerIndex+len(abstractPathMarkerConstant):]
	}

	authors := make([]string, 0, len(feedEntry.Authors))
	for _, author := range feedEntry.Authors {
		name := collapseWhitespace(author.Name)
		if len(name) > 0 {
			authors = append(authors, name)
		}
	}

	link := trimmedIdentifier
	for _, candidate := range feedEntry.Links {
		if candidate.Relation == alternateLinkRelation && len(strings.TrimSpace(candidate.Href)) > 0 {
			link = strings.TrimSpace(candidate.Href)
			break
		}
	}

	return Entry{
		ID:        paperIdentifier,
		Title:     collapseWhitespace(feedEntry.Title),
		Summary:   strings.TrimSpace(feedEntry.Summary),
		Authors:   authors,
		Link:      link,
		Published: strings.TrimSpace(feedEntry.Published),
	}
}

func collapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), whitespaceSeparatorConstant)
}
