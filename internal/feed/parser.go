package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/qb411/cloud-health-map/internal/models"
)

// ErrParseFailed signals a malformed feed document. A well-formed feed with
// zero items is not an error.
var ErrParseFailed = errors.New("feed parse failed")

// regionPattern matches tokens like "us-east-1". Lowercase only: the upstream
// feed is inconsistent about casing in titles, and uppercase codes are
// deliberately not matched (known limitation of the heuristic, kept as-is).
var regionPattern = regexp.MustCompile(`\b([a-z]{2}-[a-z]+-\d+)\b`)

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		LastBuildDate string    `xml:"lastBuildDate"`
		Items         []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// pubDateLayouts covers the date formats seen in status feeds. RFC1123 with a
// numeric zone is what the AWS feed actually emits.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

// Parse converts raw RSS text into health events plus channel metadata.
// Events come back in document order; items whose pubDate cannot be parsed
// get a zero timestamp and fall out at the next prune pass.
func Parse(raw []byte) ([]models.HealthEvent, models.FeedMeta, error) {
	var doc rssDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, models.FeedMeta{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	meta := models.FeedMeta{LastBuildDate: strings.TrimSpace(doc.Channel.LastBuildDate)}

	events := make([]models.HealthEvent, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		events = append(events, models.HealthEvent{
			GUID:        strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			PublishedAt: parsePubDate(item.PubDate),
		})
	}

	return events, meta, nil
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// RegionCode extracts the first region code from an event title. The second
// return is false when the title carries no recognizable code; such events
// stay in the log but never influence region status.
func RegionCode(title string) (string, bool) {
	match := regionPattern.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Classify derives an event's severity from its description. Checked in
// priority order, first match wins; the keyword lists are part of the
// observable contract and must not be extended casually.
func Classify(description string) models.Severity {
	lower := strings.ToLower(description)
	if strings.Contains(lower, "outage") || strings.Contains(lower, "unavailable") {
		return models.SeverityOutage
	}
	if strings.Contains(lower, "degraded") || strings.Contains(lower, "increased error") {
		return models.SeverityIssue
	}
	return models.SeverityOperational
}
