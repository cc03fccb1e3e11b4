package provider

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// GoogleBooks Google Books客户端
// sourceID是volume ID，或"isbn:"前缀的ISBN（走volumes?q=isbn:查询）
type GoogleBooks struct {
	client  *httpClient
	baseURL string
	apiKey  string
}

// NewGoogleBooks 创建Google Books客户端
func NewGoogleBooks(baseURL, apiKey string, rps float64, timeout time.Duration, logger *zap.Logger) *GoogleBooks {
	return &GoogleBooks{
		client:  newHTTPClient("google-books", rps, timeout, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

var _ Provider = (*GoogleBooks)(nil)

// Source 数据源标签
func (g *GoogleBooks) Source() string { return book.SourceGoogleBooks }

type gbVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		Categories          []string `json:"categories"`
		Language            string   `json:"language"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks map[string]string `json:"imageLinks"`
		Dimensions struct {
			Height    string `json:"height"`
			Width     string `json:"width"`
			Thickness string `json:"thickness"`
		} `json:"dimensions"`
	} `json:"volumeInfo"`
}

type gbSearchResponse struct {
	TotalItems int        `json:"totalItems"`
	Items      []gbVolume `json:"items"`
}

// Fetch 拉取一个volume
func (g *GoogleBooks) Fetch(ctx context.Context, sourceID string) (*book.NormalizedBook, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, ErrNotFound
	}

	if isbn, ok := ISBNFromSourceID(sourceID); ok {
		var resp gbSearchResponse
		if err := g.client.getJSON(ctx, g.url("/volumes", url.Values{"q": {"isbn:" + isbn}, "maxResults": {"1"}}), &resp); err != nil {
			return nil, err
		}
		if resp.TotalItems == 0 || len(resp.Items) == 0 {
			return nil, ErrNotFound
		}
		return mapVolume(&resp.Items[0]), nil
	}

	var vol gbVolume
	if err := g.client.getJSON(ctx, g.url("/volumes/"+url.PathEscape(sourceID), nil), &vol); err != nil {
		return nil, err
	}
	return mapVolume(&vol), nil
}

func (g *GoogleBooks) url(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}
	u := g.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// gbHighRes Google Books的large/extraLarge是高分辨率封面
var gbHighRes = map[string]bool{book.ImageLarge: true, book.ImageExtraLarge: true}

func mapVolume(v *gbVolume) *book.NormalizedBook {
	info := v.VolumeInfo
	nb := &book.NormalizedBook{
		Title:         info.Title,
		Subtitle:      info.Subtitle,
		Authors:       info.Authors,
		Categories:    info.Categories,
		Publisher:     info.Publisher,
		PublishedDate: info.PublishedDate,
		Language:      info.Language,
		PageCount:     info.PageCount,
		Description:   info.Description,
		Source:        book.SourceGoogleBooks,
		ExternalID:    v.ID,
	}
	for _, id := range info.IndustryIdentifiers {
		nb.Identifiers = append(nb.Identifiers, book.Identifier{Type: id.Type, Value: id.Identifier})
	}
	for typ, link := range info.ImageLinks {
		if link == "" {
			continue
		}
		nb.ImageLinks = append(nb.ImageLinks, book.ImageLink{
			Type:     typ,
			URL:      httpsURL(link),
			HighRes:  gbHighRes[typ],
			Provider: book.SourceGoogleBooks,
		})
	}
	sort.Slice(nb.ImageLinks, func(i, j int) bool { return nb.ImageLinks[i].Type < nb.ImageLinks[j].Type })

	d := book.Dimensions{Height: info.Dimensions.Height, Width: info.Dimensions.Width, Thickness: info.Dimensions.Thickness}
	if !d.IsEmpty() {
		nb.Dimensions = &d
	}
	return nb
}

// httpsURL Google Books返回的图片地址是http
func httpsURL(s string) string {
	if strings.HasPrefix(s, "http://") {
		return "https://" + strings.TrimPrefix(s, "http://")
	}
	return s
}
