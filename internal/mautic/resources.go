package mautic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
)

// resource describes how one collection is listed.
type resource struct {
	path  string
	key   string
	query url.Values
}

var resources = map[domain.ResourceType]resource{
	domain.ResourceContacts: {
		path:  "/contacts",
		key:   "contacts",
		query: url.Values{"orderBy": {"id"}, "orderByDir": {"DESC"}},
	},
	domain.ResourceCampaigns: {path: "/campaigns", key: "campaigns"},
	domain.ResourceEmails:    {path: "/emails", key: "emails"},
	// the segments endpoint answers under "lists"
	domain.ResourceSegments: {path: "/segments", key: "lists"},
}

// FetchAllContacts pages through every contact.
func (c *Client) FetchAllContacts(ctx context.Context) ([]Contact, error) {
	return fetchAll[Contact](ctx, c, domain.ResourceContacts)
}

// FetchAllCampaigns pages through every campaign.
func (c *Client) FetchAllCampaigns(ctx context.Context) ([]Campaign, error) {
	return fetchAll[Campaign](ctx, c, domain.ResourceCampaigns)
}

// FetchAllEmails pages through every email.
func (c *Client) FetchAllEmails(ctx context.Context) ([]Email, error) {
	return fetchAll[Email](ctx, c, domain.ResourceEmails)
}

// FetchAllSegments pages through every segment.
func (c *Client) FetchAllSegments(ctx context.Context) ([]Segment, error) {
	return fetchAll[Segment](ctx, c, domain.ResourceSegments)
}

// FetchContactTotal returns the instance's contact count without paging.
func (c *Client) FetchContactTotal(ctx context.Context) (int, error) {
	raw, err := c.Request(ctx, "/contacts?limit=1", http.MethodGet, nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Total flexInt `json:"total"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("failed to parse contacts response: %w", err)
	}
	return int(resp.Total), nil
}

// fetchAll requests pages of PageSize until a page comes back empty or
// short. Records keep page order.
func fetchAll[T any](ctx context.Context, c *Client, rt domain.ResourceType) ([]T, error) {
	res, ok := resources[rt]
	if !ok {
		return nil, fmt.Errorf("mautic: unknown resource %q", rt)
	}

	var (
		all   []T
		total int
	)
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range res.query {
			q[k] = v
		}
		q.Set("start", strconv.Itoa((page-1)*PageSize))
		q.Set("limit", strconv.Itoa(PageSize))

		raw, err := c.Request(ctx, res.path+"?"+q.Encode(), http.MethodGet, nil)
		if err != nil {
			return nil, err
		}

		items, pageTotal, err := decodePage(raw, res.key)
		if err != nil {
			return nil, fmt.Errorf("mautic: %s page %d: %w", rt, page, err)
		}
		if pageTotal > total {
			total = pageTotal
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			var v T
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, fmt.Errorf("mautic: %s page %d: decode record: %w", rt, page, err)
			}
			all = append(all, v)
		}

		if len(items) < PageSize {
			break
		}
	}

	if total > len(all) {
		logger.Warn("mautic: collection shorter than reported total",
			"resource", string(rt), "fetched", len(all), "total", total, "base_url", c.baseURL)
	}
	return all, nil
}

// decodePage pulls the collection under key and the reported total out of
// one list response.
func decodePage(raw []byte, key string) ([]json.RawMessage, int, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, 0, fmt.Errorf("failed to parse response: %w", err)
	}
	var total flexInt
	if t, ok := envelope["total"]; ok {
		_ = json.Unmarshal(t, &total)
	}
	items, err := orderedCollection(envelope[key])
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

// orderedCollection turns a collection into a list. Mautic keys records by
// id in an object; integer keys come out ascending, any other keys follow
// in document order. Arrays are returned as-is.
func orderedCollection(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to parse collection: %w", err)
		}
		return list, nil
	}

	type entry struct {
		key   string
		num   int64
		isNum bool
		value json.RawMessage
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse collection: %w", err)
	}
	var entries []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse collection: %w", err)
		}
		k, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to parse collection entry %q: %w", k, err)
		}
		e := entry{key: k, value: v}
		if n, err := strconv.ParseInt(k, 10, 64); err == nil && n >= 0 && strconv.FormatInt(n, 10) == k {
			e.num, e.isNum = n, true
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.isNum != b.isNum {
			return a.isNum
		}
		if a.isNum {
			return a.num < b.num
		}
		return false
	})

	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out, nil
}
