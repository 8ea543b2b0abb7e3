package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/amishk599/jobsync/internal/filter"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
)

const (
	DefaultNAVBaseURL     = "https://pam-stilling-feed.nav.no/api/v1"
	DefaultNAVTokenURL    = "https://pam-stilling-feed.nav.no/api/publicToken"
	DefaultNAVPostingBase = "https://arbeidsplassen.nav.no/stillinger/stilling/"

	navStatusActive = "ACTIVE"
)

// navFeedPage is one page of the NAV job feed.
type navFeedPage struct {
	ID     string        `json:"id"`
	NextID string        `json:"next_id"`
	Items  []navFeedItem `json:"items"`
}

type navFeedItem struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	FeedEntry navFeedEntry `json:"_feed_entry"`
}

type navFeedEntry struct {
	UUID         string `json:"uuid"`
	Status       string `json:"status"`
	Title        string `json:"title"`
	BusinessName string `json:"businessName"`
	Municipal    string `json:"municipal"`
	County       string `json:"county"`
}

// navEntry is the detail document from /feedentry/{uuid}. Newer responses nest
// the ad under ad_content; older ones are flat.
type navEntry struct {
	navAd
	AdContent *navAd `json:"ad_content"`
}

type navAd struct {
	Title          string        `json:"title"`
	BusinessName   string        `json:"businessName"`
	Description    string        `json:"description"`
	AdText         string        `json:"adText"`
	Published      string        `json:"published"`
	ApplicationDue string        `json:"applicationDue"`
	Properties     navProperties `json:"properties"`
}

type navProperties struct {
	Extent string `json:"extent"`
}

// navCursor is the opaque continuation token for the NAV feed: the last page
// reached and the ETag it was served with.
type navCursor struct {
	PageID string `json:"page_id,omitempty"`
	ETag   string `json:"etag,omitempty"`
}

func decodeNAVCursor(s string) (navCursor, error) {
	var c navCursor
	if s == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return navCursor{}, fmt.Errorf("decode nav cursor: %w", err)
	}
	return c, nil
}

func (c navCursor) encode() string {
	if c.PageID == "" && c.ETag == "" {
		return ""
	}
	b, _ := json.Marshal(c)
	return string(b)
}

// NAVConfig holds the NAV adapter settings.
type NAVConfig struct {
	BaseURL     string
	TokenURL    string
	PostingBase string
	Token       string   // static bearer token; fetched from TokenURL when empty
	Locations   []string // municipal or county names, "COUNTY.MUNICIPAL" matches either
	UserAgent   string
	MaxPages    int
	MaxItems    int
}

// NAVAdapter fetches postings from the NAV public job feed.
type NAVAdapter struct {
	cfg       NAVConfig
	client    *http.Client
	retrier   *retry.Retrier
	locations *filter.LocationMatcher
	logger    *slog.Logger

	mu    sync.Mutex
	token string
}

// NewNAVAdapter creates a NAV feed adapter. Empty URLs fall back to the public
// NAV endpoints.
func NewNAVAdapter(cfg NAVConfig, client *http.Client, retrier *retry.Retrier, logger *slog.Logger) *NAVAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNAVBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultNAVTokenURL
	}
	if cfg.PostingBase == "" {
		cfg.PostingBase = DefaultNAVPostingBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &NAVAdapter{
		cfg:       cfg,
		client:    client,
		retrier:   retrier,
		locations: filter.NewLocationMatcher(cfg.Locations),
		logger:    logger,
		token:     cfg.Token,
	}
}

// Fetch walks the feed from the cursor's page through next_id links.
//
// The first page is requested with the cursor's ETag; a 304 ends the run as
// not modified. Items whose feed status is not ACTIVE are reported as
// withdrawn. Active items are filtered by location before the detail request
// and by keyword after it.
func (a *NAVAdapter) Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error) {
	cur, err := decodeNAVCursor(req.Cursor)
	if err != nil {
		a.logger.Warn("discarding unreadable nav cursor", "error", err)
		cur = navCursor{}
	}

	matcher := filter.NewKeywordMatcher(req.Keywords)
	result := model.FetchResult{Cursor: req.Cursor}
	// The feed may list a UUID more than once; its last entry decides
	// whether it is live or withdrawn.
	seen := make(map[string]bool)
	live := make(map[string]bool)
	withdrawn := make(map[string]bool)
	var postings []model.Posting
	var withdrawnOrder []string

	pageID := cur.PageID
	etag := cur.ETag
	next := cur

	for pages := 0; pages < a.cfg.MaxPages; pages++ {
		page, pageETag, notModified, err := a.fetchPage(ctx, pageID, etag)
		if err != nil {
			return model.FetchResult{Cursor: req.Cursor}, err
		}
		if notModified {
			if pages == 0 {
				a.logger.Info("nav feed not modified", "page_id", pageID)
				return model.FetchResult{Cursor: req.Cursor, NotModified: true}, nil
			}
			break
		}
		etag = "" // only the first page of a run is conditional

		if page.ID != "" {
			pageID = page.ID
		}
		next = navCursor{PageID: pageID, ETag: pageETag}

		capped := false
		for _, item := range page.Items {
			uuid := item.FeedEntry.UUID
			if uuid == "" {
				uuid = item.ID
			}
			if uuid == "" {
				continue
			}
			url := a.cfg.PostingBase + uuid

			if item.FeedEntry.Status != "" && item.FeedEntry.Status != navStatusActive {
				if _, ok := withdrawn[url]; !ok {
					withdrawnOrder = append(withdrawnOrder, url)
				}
				withdrawn[url] = true
				live[url] = false
				continue
			}
			withdrawn[url] = false
			live[url] = true

			if !a.locations.Equals(item.FeedEntry.Municipal) && !a.locations.Equals(item.FeedEntry.County) {
				continue
			}
			if seen[url] {
				continue
			}
			if a.cfg.MaxItems > 0 && len(seen) >= a.cfg.MaxItems {
				capped = true
				break
			}
			seen[url] = true

			if req.Known != nil && req.Known(url) {
				postings = append(postings, a.postingFromFeed(item, uuid, url))
				continue
			}

			p, err := a.fetchDetail(ctx, item, uuid, url)
			if err != nil {
				a.logger.Warn("skipping nav item after detail failure", "url", url, "error", err)
				result.ItemErrors++
				continue
			}
			kw, ok := matcher.Match(p.Title, p.Description)
			if !ok {
				continue
			}
			p.MatchedKeyword = kw
			postings = append(postings, p)
		}

		if capped {
			// Re-read this page next run; its ETag no longer describes what was processed.
			next = navCursor{PageID: pageID}
			a.logger.Info("nav item cap reached", "max_items", a.cfg.MaxItems)
			break
		}
		if page.NextID == "" {
			break
		}
		pageID = page.NextID
		next = navCursor{PageID: pageID}
	}

	for _, p := range postings {
		if live[p.URL] {
			result.Postings = append(result.Postings, p)
		}
	}
	for _, url := range withdrawnOrder {
		if withdrawn[url] {
			result.Withdrawn = append(result.Withdrawn, url)
		}
	}
	result.Cursor = next.encode()
	return result, nil
}

func (a *NAVAdapter) fetchPage(ctx context.Context, pageID, etag string) (navFeedPage, string, bool, error) {
	url := a.cfg.BaseURL + "/feed"
	if pageID != "" {
		url += "/" + pageID
	}

	var resp *response
	err := a.retrier.Do(ctx, "nav feed page", func(ctx context.Context) error {
		r, err := a.authorizedGet(ctx, url, etag, "nav feed page")
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return navFeedPage{}, "", false, err
	}
	if resp.status == http.StatusNotModified {
		return navFeedPage{}, "", true, nil
	}

	var page navFeedPage
	if err := json.Unmarshal(resp.body, &page); err != nil {
		return navFeedPage{}, "", false, fmt.Errorf("nav feed page decode: %w", err)
	}
	return page, resp.header.Get("ETag"), false, nil
}

func (a *NAVAdapter) fetchDetail(ctx context.Context, item navFeedItem, uuid, url string) (model.Posting, error) {
	resp, err := a.authorizedGet(ctx, a.cfg.BaseURL+"/feedentry/"+uuid, "", "nav feed entry")
	if err != nil {
		return model.Posting{}, err
	}

	var entry navEntry
	if err := json.Unmarshal(resp.body, &entry); err != nil {
		return model.Posting{}, fmt.Errorf("nav feed entry decode: %w", err)
	}
	ad := entry.navAd
	if entry.AdContent != nil {
		ad = *entry.AdContent
	}

	p := a.postingFromFeed(item, uuid, url)
	if ad.Title != "" {
		p.Title = ad.Title
	}
	if ad.BusinessName != "" {
		p.Company = ad.BusinessName
	}
	desc := ad.Description
	if desc == "" {
		desc = ad.AdText
	}
	p.Description = extractText(desc)
	p.Deadline = ad.ApplicationDue
	p.EmploymentType = ad.Properties.Extent
	p.PublishedAt = ad.Published
	return p, nil
}

func (a *NAVAdapter) postingFromFeed(item navFeedItem, uuid, url string) model.Posting {
	title := item.FeedEntry.Title
	if title == "" {
		title = item.Title
	}
	company := item.FeedEntry.BusinessName
	if company == "" {
		company = "Unknown"
	}
	return model.Posting{
		URL:        url,
		Source:     model.SourceNAV,
		Title:      title,
		Company:    company,
		Location:   item.FeedEntry.Municipal,
		ExternalID: uuid,
		Status:     model.StatusActive,
	}
}

// authorizedGet sends a bearer-authenticated GET. A 401 with a fetched public
// token refreshes the token once.
func (a *NAVAdapter) authorizedGet(ctx context.Context, url, etag, what string) (*response, error) {
	for attempt := 0; ; attempt++ {
		token, err := a.bearer(ctx)
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		header.Set("Accept", "application/json")
		header.Set("Authorization", "Bearer "+token)
		if a.cfg.UserAgent != "" {
			header.Set("User-Agent", a.cfg.UserAgent)
		}
		if etag != "" {
			header.Set("If-None-Match", etag)
		}

		resp, err := get(ctx, a.client, url, header, what)
		var httpErr *model.HTTPError
		if attempt == 0 && a.cfg.Token == "" && errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
			a.logger.Info("nav token rejected, refreshing")
			a.mu.Lock()
			a.token = ""
			a.mu.Unlock()
			continue
		}
		return resp, err
	}
}

// bearer returns the configured token, or fetches the public one. The public
// endpoint answers with plain text whose last line is the token.
func (a *NAVAdapter) bearer(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}

	resp, err := get(ctx, a.client, a.cfg.TokenURL, nil, "nav public token")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(string(resp.body)), "\n")
	token := strings.TrimSpace(lines[len(lines)-1])
	if token == "" {
		return "", errors.New("nav public token: empty response")
	}
	a.logger.Info("fetched public nav token")
	a.token = token
	return token, nil
}
