package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PostsPerPage is the fixed number of posts the forum renders per page.
// Thread ordering across independently parsed pages depends on it.
const PostsPerPage = 15

// PostRecord is one message extracted from a page, in document order.
type PostRecord struct {
	ID          int
	UserID      int
	Username    string
	ThreadOrder int
	Datetime    string
	Body        string
}

// ThreadRecord is the ordered extraction result for one page snapshot.
// Multiple records with the same thread ID arise from multi-page threads;
// the store merges them idempotently.
type ThreadRecord struct {
	Slug  string
	ID    uint64
	Title string
	Posts []PostRecord
}

// ParsePage extracts a ThreadRecord from the raw HTML of one page snapshot.
func ParsePage(htmlText string, locs *Selectors) (ThreadRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return ThreadRecord{}, fmt.Errorf("parse document: %w", err)
	}

	slug, threadID, err := threadIdentity(doc, locs)
	if err != nil {
		return ThreadRecord{}, err
	}

	title := doc.FindMatcher(locs.Title)
	if title.Length() == 0 {
		return ThreadRecord{}, &MissingFieldError{Field: "thread title"}
	}
	titleHTML, err := title.Html()
	if err != nil {
		return ThreadRecord{}, fmt.Errorf("render thread title: %w", err)
	}

	page := currentPage(doc, locs)

	var posts []PostRecord
	var postErr error
	doc.FindMatcher(locs.Post).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		post, err := parsePost(sel, locs)
		if err != nil {
			postErr = err
			return false
		}
		post.ThreadOrder = page*PostsPerPage + i
		posts = append(posts, post)
		return true
	})
	if postErr != nil {
		return ThreadRecord{}, postErr
	}

	return ThreadRecord{
		Slug:  slug,
		ID:    threadID,
		Title: strings.TrimSpace(titleHTML),
		Posts: posts,
	}, nil
}

// threadIdentity derives (slug, id) from the canonical URL meta tag. The
// second-to-last path segment has the form "<slug>.<id>".
func threadIdentity(doc *goquery.Document, locs *Selectors) (string, uint64, error) {
	meta := doc.FindMatcher(locs.CanonicalURL)
	if meta.Length() == 0 {
		return "", 0, &MissingFieldError{Field: "canonical URL"}
	}
	canonical, ok := meta.Attr("content")
	if !ok {
		return "", 0, &MissingFieldError{Field: "canonical URL content"}
	}

	parts := strings.Split(canonical, "/")
	if len(parts) < 2 {
		return "", 0, &MalformedIdentifierError{Field: "thread identifier", Value: canonical}
	}
	segment := parts[len(parts)-2]
	pieces := strings.Split(segment, ".")
	if len(pieces) < 2 {
		return "", 0, &MalformedIdentifierError{Field: "thread identifier", Value: segment}
	}
	slug, idText := pieces[0], pieces[1]
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		return "", 0, &MalformedIdentifierError{Field: "thread id", Value: idText, Err: err}
	}
	return slug, id, nil
}

// currentPage reads the pagination marker. An absent marker means the first
// page; a marker that does not parse as a non-negative integer is tolerated
// and likewise treated as page zero.
func currentPage(doc *goquery.Document, locs *Selectors) int {
	marker := doc.FindMatcher(locs.CurrentPage)
	if marker.Length() == 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(marker.First().Text()))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parsePost(sel *goquery.Selection, locs *Selectors) (PostRecord, error) {
	id, err := postID(sel)
	if err != nil {
		return PostRecord{}, err
	}

	timestamp := sel.FindMatcher(locs.Timestamp)
	if timestamp.Length() == 0 {
		return PostRecord{}, &MissingFieldError{Field: "post timestamp"}
	}
	datetime, ok := timestamp.First().Attr("datetime")
	if !ok {
		return PostRecord{}, &MissingFieldError{Field: "post timestamp datetime attribute"}
	}

	userID, username, err := author(sel, locs)
	if err != nil {
		return PostRecord{}, err
	}

	body := sel.FindMatcher(locs.Body)
	if body.Length() == 0 {
		return PostRecord{}, &MissingFieldError{Field: "message body"}
	}
	// Inner markup is captured verbatim; whitespace trimming happens at
	// persistence time.
	bodyHTML, err := body.Html()
	if err != nil {
		return PostRecord{}, fmt.Errorf("render message body: %w", err)
	}

	return PostRecord{
		ID:       id,
		UserID:   userID,
		Username: username,
		Datetime: datetime,
		Body:     bodyHTML,
	}, nil
}

// postID parses the numeric post id out of the container's data-content
// attribute, which has the form "post-<id>".
func postID(sel *goquery.Selection) (int, error) {
	raw, ok := sel.Attr("data-content")
	if !ok {
		return 0, &MalformedIdentifierError{Field: "post id", Value: ""}
	}
	tokens := strings.Split(raw, "-")
	if len(tokens) < 2 {
		return 0, &MalformedIdentifierError{Field: "post id", Value: raw}
	}
	id, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0, &MalformedIdentifierError{Field: "post id", Value: raw, Err: err}
	}
	return id, nil
}

// author resolves the post author. A linked author carries an explicit
// numeric user id; otherwise the avatar title supplies a display name for
// the shared anonymous user id 0.
func author(sel *goquery.Selection, locs *Selectors) (int, string, error) {
	if link := sel.FindMatcher(locs.Author); link.Length() > 0 {
		first := link.First()
		rawID, ok := first.Attr("data-user-id")
		if !ok {
			return 0, "", &MissingFieldError{Field: "author user id"}
		}
		id, err := strconv.Atoi(rawID)
		if err != nil {
			return 0, "", &MalformedIdentifierError{Field: "user id", Value: rawID, Err: err}
		}
		return id, strings.Join(strings.Fields(first.Text()), " "), nil
	}

	avatar := sel.FindMatcher(locs.Avatar)
	if avatar.Length() == 0 {
		return 0, "", &MissingFieldError{Field: "post author"}
	}
	name, ok := avatar.First().Attr("title")
	if !ok {
		return 0, "", &MissingFieldError{Field: "avatar title"}
	}
	return 0, name, nil
}
