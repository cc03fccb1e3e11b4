package provider

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// BestsellerEntry 榜单中的一条
type BestsellerEntry struct {
	Rank int
	Book book.NormalizedBook
}

// BestsellerFeed 畅销榜客户端（NYT Books API的lists接口）
type BestsellerFeed struct {
	client  *httpClient
	baseURL string
	apiKey  string
	list    string
}

// NewBestsellerFeed 创建畅销榜客户端
func NewBestsellerFeed(baseURL, apiKey, list string, rps float64, timeout time.Duration, logger *zap.Logger) *BestsellerFeed {
	return &BestsellerFeed{
		client:  newHTTPClient("bestseller-feed", rps, timeout, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		list:    list,
	}
}

type nytListResponse struct {
	Status  string `json:"status"`
	Results struct {
		ListName      string    `json:"list_name"`
		PublishedDate string    `json:"published_date"`
		Books         []nytBook `json:"books"`
	} `json:"results"`
}

type nytBook struct {
	Rank            int    `json:"rank"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Publisher       string `json:"publisher"`
	Description     string `json:"description"`
	PrimaryISBN13   string `json:"primary_isbn13"`
	PrimaryISBN10   string `json:"primary_isbn10"`
	BookImage       string `json:"book_image"`
	BookImageWidth  int    `json:"book_image_width"`
	BookImageHeight int    `json:"book_image_height"`
}

// Current 当前榜单；list为空时使用配置的默认榜单
func (f *BestsellerFeed) Current(ctx context.Context, list string) ([]BestsellerEntry, error) {
	if list == "" {
		list = f.list
	}
	u := f.baseURL + "/lists/current/" + url.PathEscape(list) + ".json"
	if f.apiKey != "" {
		u += "?" + url.Values{"api-key": {f.apiKey}}.Encode()
	}

	var resp nytListResponse
	if err := f.client.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	entries := make([]BestsellerEntry, 0, len(resp.Results.Books))
	for _, b := range resp.Results.Books {
		entries = append(entries, BestsellerEntry{Rank: b.Rank, Book: mapNYTBook(b)})
	}
	return entries, nil
}

// mapNYTBook NYT没有稳定的记录ID，用主ISBN作为外部标识
func mapNYTBook(b nytBook) book.NormalizedBook {
	nb := book.NormalizedBook{
		Title:       titleCase(b.Title),
		Authors:     splitAuthors(b.Author),
		Publisher:   b.Publisher,
		Description: b.Description,
		ISBN13:      b.PrimaryISBN13,
		ISBN10:      b.PrimaryISBN10,
		Source:      book.SourceNYT,
		ExternalID:  b.PrimaryISBN13,
	}
	if nb.ExternalID == "" {
		nb.ExternalID = b.PrimaryISBN10
	}
	if b.BookImage != "" {
		nb.ImageLinks = []book.ImageLink{{
			Type:     book.ImageThumbnail,
			URL:      b.BookImage,
			Width:    b.BookImageWidth,
			Height:   b.BookImageHeight,
			Provider: book.SourceNYT,
		}}
	}
	return nb
}

// splitAuthors "A and B" / "A with B" → [A, B]
func splitAuthors(s string) []string {
	s = strings.NewReplacer(" with ", ",", " and ", ",").Replace(s)
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// titleCase NYT榜单书名全大写
func titleCase(s string) string {
	if strings.ToUpper(s) != s {
		return s
	}
	return cases.Title(language.English).String(s)
}
