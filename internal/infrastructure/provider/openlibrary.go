package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

// maxOpenLibraryAuthors 每个版本最多解析的作者数（每个作者一次额外请求）
const maxOpenLibraryAuthors = 5

// OpenLibrary Open Library客户端
// sourceID是版本ID（OL…M），或"isbn:"前缀的ISBN
type OpenLibrary struct {
	client   *httpClient
	baseURL  string
	coverURL string
	logger   *zap.Logger
}

// NewOpenLibrary 创建Open Library客户端
func NewOpenLibrary(baseURL, coverURL string, rps float64, timeout time.Duration, logger *zap.Logger) *OpenLibrary {
	return &OpenLibrary{
		client:   newHTTPClient("open-library", rps, timeout, logger),
		baseURL:  strings.TrimRight(baseURL, "/"),
		coverURL: strings.TrimRight(coverURL, "/"),
		logger:   logger,
	}
}

var _ Provider = (*OpenLibrary)(nil)

// Source 数据源标签
func (o *OpenLibrary) Source() string { return book.SourceOpenLibrary }

type olRef struct {
	Key string `json:"key"`
}

type olEdition struct {
	Key           string      `json:"key"` // /books/OL7353617M
	Title         string      `json:"title"`
	Subtitle      string      `json:"subtitle"`
	Authors       []olRef     `json:"authors"`
	Publishers    []string    `json:"publishers"`
	PublishDate   string      `json:"publish_date"`
	ISBN10        []string    `json:"isbn_10"`
	ISBN13        []string    `json:"isbn_13"`
	Covers        []int       `json:"covers"`
	NumberOfPages int         `json:"number_of_pages"`
	Subjects      []string    `json:"subjects"`
	Languages     []olRef     `json:"languages"` // /languages/eng
	Description   interface{} `json:"description"` // 字符串或{type, value}
	PhysicalDims  string      `json:"physical_dimensions"`
}

type olAuthor struct {
	Name string `json:"name"`
}

// Fetch 拉取一个版本
func (o *OpenLibrary) Fetch(ctx context.Context, sourceID string) (*book.NormalizedBook, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, ErrNotFound
	}

	path := "/books/" + url.PathEscape(strings.TrimPrefix(sourceID, "/books/")) + ".json"
	if isbn, ok := ISBNFromSourceID(sourceID); ok {
		path = "/isbn/" + isbn + ".json"
	}

	var ed olEdition
	if err := o.client.getJSON(ctx, o.baseURL+path, &ed); err != nil {
		return nil, err
	}
	nb := o.mapEdition(&ed)

	// 作者名需要逐个解析；失败只影响作者列表
	for i, ref := range ed.Authors {
		if i >= maxOpenLibraryAuthors {
			break
		}
		var a olAuthor
		if err := o.client.getJSON(ctx, o.baseURL+ref.Key+".json", &a); err != nil {
			o.logger.Debug("open library author lookup failed", zap.String("key", ref.Key), zap.Error(err))
			continue
		}
		if a.Name != "" {
			nb.Authors = append(nb.Authors, a.Name)
		}
	}
	return nb, nil
}

func (o *OpenLibrary) mapEdition(ed *olEdition) *book.NormalizedBook {
	nb := &book.NormalizedBook{
		Title:         ed.Title,
		Subtitle:      ed.Subtitle,
		Categories:    ed.Subjects,
		PublishedDate: ed.PublishDate,
		PageCount:     ed.NumberOfPages,
		Description:   olDescription(ed.Description),
		Source:        book.SourceOpenLibrary,
		ExternalID:    strings.TrimPrefix(ed.Key, "/books/"),
	}
	if len(ed.Publishers) > 0 {
		nb.Publisher = ed.Publishers[0]
	}
	if len(ed.ISBN13) > 0 {
		nb.ISBN13 = ed.ISBN13[0]
	}
	if len(ed.ISBN10) > 0 {
		nb.ISBN10 = ed.ISBN10[0]
	}
	if len(ed.Languages) > 0 {
		nb.Language = olLanguage(ed.Languages[0].Key)
	}
	if len(ed.Covers) > 0 && ed.Covers[0] > 0 {
		nb.ImageLinks = o.coverLinks(ed.Covers[0])
	}
	if ed.PhysicalDims != "" {
		nb.Dimensions = &book.Dimensions{Height: ed.PhysicalDims}
	}
	return nb
}

// coverLinks 封面服务的S/M/L三种尺寸
func (o *OpenLibrary) coverLinks(coverID int) []book.ImageLink {
	sizes := []struct {
		suffix string
		typ    string
		high   bool
	}{
		{"S", book.ImageSmallThumbnail, false},
		{"M", book.ImageMedium, false},
		{"L", book.ImageLarge, true},
	}
	links := make([]book.ImageLink, 0, len(sizes))
	for _, s := range sizes {
		links = append(links, book.ImageLink{
			Type:     s.typ,
			URL:      fmt.Sprintf("%s/b/id/%d-%s.jpg", o.coverURL, coverID, s.suffix),
			HighRes:  s.high,
			Provider: book.SourceOpenLibrary,
		})
	}
	return links
}

// olDescription description可能是字符串，也可能是{"type": "/type/text", "value": "..."}
func olDescription(v interface{}) string {
	switch d := v.(type) {
	case string:
		return d
	case map[string]interface{}:
		if s, ok := d["value"].(string); ok {
			return s
		}
	}
	return ""
}

// olLanguage /languages/eng → eng
func olLanguage(key string) string {
	return strings.TrimPrefix(key, "/languages/")
}
