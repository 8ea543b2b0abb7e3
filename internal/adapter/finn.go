package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobsync/internal/filter"
	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
)

const (
	DefaultFINNBaseURL  = "https://www.finn.no"
	DefaultFINNLocation = "2.20001.22046.20220" // Vestland > Bergen

	finnAdPath = "/job/ad/"
)

var finnCodeRegex = regexp.MustCompile(`(?:/job/ad/|finnkode=)(\d+)`)

// FINNConfig holds the FINN adapter settings.
type FINNConfig struct {
	BaseURL       string
	Location      string   // FINN location code sent with every search
	LocationNames []string // place names a result card must mention, when it names one
	UserAgent     string
	MaxPages      int // search pages per run, across all keywords
	MaxItems      int
	MaxKeywords   int // 0 searches every keyword
}

// FINNAdapter scrapes job postings from FINN.no search and ad pages.
type FINNAdapter struct {
	cfg       FINNConfig
	client    *http.Client
	retrier   *retry.Retrier
	locations *filter.LocationMatcher
	logger    *slog.Logger
}

// NewFINNAdapter creates a FINN adapter.
func NewFINNAdapter(cfg FINNConfig, client *http.Client, retrier *retry.Retrier, logger *slog.Logger) *FINNAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultFINNBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &FINNAdapter{
		cfg:       cfg,
		client:    client,
		retrier:   retrier,
		locations: filter.NewLocationMatcher(cfg.LocationNames),
		logger:    logger,
	}
}

// finnCard is a search result before the detail fetch.
type finnCard struct {
	url      string
	title    string
	location string
}

// Fetch searches FINN once per keyword and fetches the detail page of every
// new result card. FINN has no change feed, so the cursor is echoed back and
// incremental behavior comes from req.Known.
//
// Two phases:
//  1. Walk the search pages for each keyword, collecting result cards that
//     pass the location check, deduplicated by URL.
//  2. GET each card's ad page, parse it and keep it if a keyword matches.
func (a *FINNAdapter) Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error) {
	result := model.FetchResult{Cursor: req.Cursor}

	cards, err := a.collectCards(ctx, limitKeywords(req.Keywords, a.cfg.MaxKeywords))
	if err != nil {
		return result, err
	}

	matcher := filter.NewKeywordMatcher(req.Keywords)
	for _, c := range cards {
		if req.Known != nil && req.Known(c.url) {
			result.Postings = append(result.Postings, a.postingFromCard(c))
			continue
		}

		p, err := a.fetchDetail(ctx, c)
		if err != nil {
			a.logger.Warn("skipping finn ad after detail failure", "url", c.url, "error", err)
			result.ItemErrors++
			continue
		}
		kw, ok := matcher.Match(p.Title, p.Description)
		if !ok {
			a.logger.Debug("finn ad matches no keyword", "url", c.url)
			continue
		}
		p.MatchedKeyword = kw
		result.Postings = append(result.Postings, p)
	}

	return result, nil
}

func (a *FINNAdapter) collectCards(ctx context.Context, keywords []string) ([]finnCard, error) {
	var cards []finnCard
	seen := make(map[string]bool)
	pages := 0

	for _, kw := range keywords {
		for page := 1; pages < a.cfg.MaxPages; page++ {
			pages++
			found, err := a.fetchSearchPage(ctx, kw, page)
			if err != nil {
				return nil, err
			}

			fresh := 0
			for _, c := range found {
				if seen[c.url] {
					continue
				}
				seen[c.url] = true
				fresh++

				if c.location != "" && !a.locations.Contains(c.location) {
					a.logger.Debug("finn card outside location", "url", c.url, "location", c.location)
					continue
				}
				if a.cfg.MaxItems > 0 && len(cards) >= a.cfg.MaxItems {
					a.logger.Info("finn item cap reached", "max_items", a.cfg.MaxItems)
					return cards, nil
				}
				cards = append(cards, c)
			}
			if fresh == 0 {
				break
			}
		}
		if pages >= a.cfg.MaxPages {
			a.logger.Info("finn page cap reached", "max_pages", a.cfg.MaxPages)
			break
		}
	}
	return cards, nil
}

func (a *FINNAdapter) searchURL(keyword string, page int) string {
	q := keyword
	if strings.Contains(q, " ") {
		q = `"` + q + `"`
	}
	params := url.Values{}
	params.Set("q", q)
	if a.cfg.Location != "" {
		params.Set("location", a.cfg.Location)
	}
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return a.cfg.BaseURL + "/job/search?" + params.Encode()
}

func (a *FINNAdapter) fetchSearchPage(ctx context.Context, keyword string, page int) ([]finnCard, error) {
	var resp *response
	err := a.retrier.Do(ctx, "finn search page", func(ctx context.Context) error {
		r, err := get(ctx, a.client, a.searchURL(keyword, page), a.header(), "finn search page")
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finn search %q page %d: %w", keyword, page, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return nil, fmt.Errorf("finn search parse: %w", err)
	}
	return a.parseCards(doc), nil
}

// parseCards extracts ad links from a search page. A card's place name is
// taken from its location element when it has one.
func (a *FINNAdapter) parseCards(doc *goquery.Document) []finnCard {
	var cards []finnCard
	doc.Find(`a[href*="` + finnAdPath + `"]`).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		u := a.canonicalURL(href)
		if u == "" {
			return
		}
		card := link.Closest("article")
		if card.Length() == 0 {
			card = link.Parent()
		}
		title := collapse(link.Text())
		if title == "" {
			title = collapse(card.Find("h2, h3").First().Text())
		}
		loc := collapse(card.Find(`[data-testid="ad-location"], [class*="location"]`).First().Text())
		cards = append(cards, finnCard{
			url:      u,
			title:    title,
			location: loc,
		})
	})
	return cards
}

// canonicalURL resolves href against the base URL and strips query and fragment.
func (a *FINNAdapter) canonicalURL(href string) string {
	base, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func (a *FINNAdapter) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml")
	h.Set("Accept-Language", "nb-NO,nb;q=0.9,no;q=0.8,en;q=0.6")
	if a.cfg.UserAgent != "" {
		h.Set("User-Agent", a.cfg.UserAgent)
	}
	return h
}

func (a *FINNAdapter) postingFromCard(c finnCard) model.Posting {
	return model.Posting{
		URL:        c.url,
		Source:     model.SourceFINN,
		Title:      c.title,
		Company:    "Unknown",
		Location:   c.location,
		ExternalID: finnCode(c.url),
		Status:     model.StatusActive,
	}
}

func (a *FINNAdapter) fetchDetail(ctx context.Context, c finnCard) (model.Posting, error) {
	resp, err := get(ctx, a.client, c.url, a.header(), "finn ad page")
	if err != nil {
		return model.Posting{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return model.Posting{}, fmt.Errorf("finn ad parse: %w", err)
	}

	p := parseFINNAd(doc)
	p.URL = c.url
	p.Source = model.SourceFINN
	p.ExternalID = finnCode(c.url)
	p.Status = model.StatusActive
	if p.Title == "" {
		p.Title = c.title
	}
	if p.Title == "" {
		return model.Posting{}, fmt.Errorf("finn ad %s: no title found", c.url)
	}
	if p.Location == "" {
		p.Location = c.location
	}
	if p.Company == "" {
		p.Company = "Unknown"
	}
	return p, nil
}

// parseFINNAd reads an ad page with CSS selectors first and fills whatever
// is still missing from the page's JSON-LD JobPosting block.
func parseFINNAd(doc *goquery.Document) model.Posting {
	var p model.Posting

	p.Title = firstText(doc, "h2.t2", "h1")
	p.Company = firstText(doc, "section.mt-16 p.mb-24")
	p.Location = firstText(doc, `a[href*="location="]`)
	p.EmploymentType = labelledValue(doc, "li.flex.flex-col", "Ansettelsesform")
	p.Deadline = labelledValue(doc, "li.flex.flex-col", "Frist")
	p.PublishedAt = lastModified(doc)
	p.Description = collapse(doc.Find("div.import-decoration").First().Text())

	if ld, ok := jobPostingLD(doc); ok {
		fill(&p.Title, ld.Title)
		fill(&p.Company, ld.HiringOrganization.Name)
		fill(&p.Location, ld.location())
		fill(&p.EmploymentType, ld.employmentType())
		fill(&p.Deadline, ld.ValidThrough)
		fill(&p.PublishedAt, ld.DatePosted)
		fill(&p.Description, extractText(ld.Description))
	}
	return p
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := collapse(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// labelledValue finds the list item whose text contains label and returns its
// bold value.
func labelledValue(doc *goquery.Document, itemSel, label string) string {
	var value string
	doc.Find(itemSel).EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if !strings.Contains(li.Text(), label) {
			return true
		}
		value = collapse(li.Find("span.font-bold").First().Text())
		return value == ""
	})
	return value
}

func lastModified(doc *goquery.Document) string {
	var value string
	doc.Find("li.flex.gap-x-16").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if !strings.Contains(li.Text(), "Sist endret") {
			return true
		}
		t := li.Find("time").First()
		if dt, ok := t.Attr("datetime"); ok && dt != "" {
			value = dt
		} else {
			value = collapse(t.Text())
		}
		return false
	})
	return value
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func finnCode(u string) string {
	if m := finnCodeRegex.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// ldJobPosting is the subset of schema.org JobPosting that FINN embeds.
type ldJobPosting struct {
	Type               any    `json:"@type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	DatePosted         string `json:"datePosted"`
	ValidThrough       string `json:"validThrough"`
	EmploymentType     any    `json:"employmentType"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation json.RawMessage   `json:"jobLocation"`
	Graph       []json.RawMessage `json:"@graph"`
}

type ldPlace struct {
	Address struct {
		Locality string `json:"addressLocality"`
	} `json:"address"`
}

func (j ldJobPosting) isJobPosting() bool {
	switch t := j.Type.(type) {
	case string:
		return t == "JobPosting"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func (j ldJobPosting) location() string {
	if len(j.JobLocation) == 0 {
		return ""
	}
	var one ldPlace
	if err := json.Unmarshal(j.JobLocation, &one); err == nil && one.Address.Locality != "" {
		return one.Address.Locality
	}
	var many []ldPlace
	if err := json.Unmarshal(j.JobLocation, &many); err == nil {
		var names []string
		for _, pl := range many {
			if pl.Address.Locality != "" {
				names = append(names, pl.Address.Locality)
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

func (j ldJobPosting) employmentType() string {
	switch t := j.EmploymentType.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, v := range t {
			if s, ok := v.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// jobPostingLD returns the first JobPosting found in the page's JSON-LD
// scripts, looking inside arrays and @graph containers.
func jobPostingLD(doc *goquery.Document) (ldJobPosting, bool) {
	var found ldJobPosting
	ok := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found, ok = findJobPosting([]byte(s.Text()))
		return !ok
	})
	return found, ok
}

func findJobPosting(raw []byte) (ldJobPosting, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ldJobPosting{}, false
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return ldJobPosting{}, false
		}
		for _, item := range list {
			if j, ok := findJobPosting(item); ok {
				return j, true
			}
		}
		return ldJobPosting{}, false
	}

	var j ldJobPosting
	if err := json.Unmarshal(raw, &j); err != nil {
		return ldJobPosting{}, false
	}
	if j.isJobPosting() {
		return j, true
	}
	for _, item := range j.Graph {
		if g, ok := findJobPosting(item); ok {
			return g, true
		}
	}
	return ldJobPosting{}, false
}
