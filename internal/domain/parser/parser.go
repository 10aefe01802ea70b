// Package parser implements the Parser & Deduper (spec §4.D): turning raw
// RSS/Atom bytes into a deduplicated list of entries. Cross-feed
// deduplication is the State Store's job (uniqueness constraints on
// (source_id, uri) and (source_id, guid)); this package only removes
// duplicates within a single parse.
package parser

import (
	"fmt"
	"time"

	"feedmesh/internal/domain/fetcherr"

	"github.com/mmcdole/gofeed"
)

// Entry is a parsed, not-yet-persisted feed item — the spec's ParsedEntry.
type Entry struct {
	GUID        string
	URL         string
	Title       string
	Description string
	Content     string
	Author      string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
	Tags        []string
}

// Parser holds the seen-guid/seen-url sets for one feed parse. It is not
// safe for concurrent use and not meant to be reused across feeds — a
// fresh Parser (or a Reset call) starts a fresh in-parse dedup scope.
type Parser struct {
	seenGUIDs map[string]struct{}
	seenURLs  map[string]struct{}
}

// New returns a Parser ready to parse a single feed.
func New() *Parser {
	return &Parser{
		seenGUIDs: make(map[string]struct{}),
		seenURLs:  make(map[string]struct{}),
	}
}

// Reset clears the seen-guid/seen-url sets so the same Parser instance can
// be reused for another feed's bytes.
func (p *Parser) Reset() {
	p.seenGUIDs = make(map[string]struct{})
	p.seenURLs = make(map[string]struct{})
}

// Parse decodes body as RSS/Atom and returns its entries, skipping any
// entry with no link and dropping in-parse duplicates by guid or url.
func (p *Parser) Parse(body []byte) ([]Entry, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetcherr.ErrParse, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it.Link == "" {
			continue
		}
		if it.GUID != "" {
			if _, ok := p.seenGUIDs[it.GUID]; ok {
				continue
			}
		}
		if _, ok := p.seenURLs[it.Link]; ok {
			continue
		}

		entries = append(entries, entryFromFeedItem(it))

		if it.GUID != "" {
			p.seenGUIDs[it.GUID] = struct{}{}
		}
		p.seenURLs[it.Link] = struct{}{}
	}

	return entries, nil
}

func entryFromFeedItem(it *gofeed.Item) Entry {
	content := it.Content
	if content == "" {
		content = it.Description
	}

	title := it.Title
	if title == "" {
		title = "Untitled"
	}

	author := ""
	if it.Author != nil {
		author = it.Author.Name
	}

	tags := make([]string, 0, len(it.Categories))
	tags = append(tags, it.Categories...)

	return Entry{
		GUID:        it.GUID,
		URL:         it.Link,
		Title:       title,
		Description: it.Description,
		Content:     content,
		Author:      author,
		PublishedAt: it.PublishedParsed,
		UpdatedAt:   it.UpdatedParsed,
		Tags:        tags,
	}
}
