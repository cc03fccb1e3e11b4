package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
)

func TestGoogleBooks_FetchByISBN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes", r.URL.Path)
		assert.Equal(t, "isbn:9780441013593", r.URL.Query().Get("q"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{
			"totalItems": 1,
			"items": [{
				"id": "B1hSG45JCX4C",
				"volumeInfo": {
					"title": "Dune",
					"authors": ["Frank Herbert"],
					"publishedDate": "2005-08-02",
					"pageCount": 604,
					"language": "en",
					"industryIdentifiers": [
						{"type": "ISBN_10", "identifier": "0441013597"},
						{"type": "ISBN_13", "identifier": "9780441013593"}
					],
					"imageLinks": {
						"thumbnail": "http://books.google.com/thumb",
						"large": "http://books.google.com/large"
					},
					"dimensions": {"height": "18.00 cm"}
				}
			}]
		}`))
	}))
	defer srv.Close()

	gb := NewGoogleBooks(srv.URL, "k", 0, time.Second, zap.NewNop())
	nb, err := gb.Fetch(context.Background(), "isbn:978-0-441-01359-3")
	require.NoError(t, err)

	assert.Equal(t, "Dune", nb.Title)
	assert.Equal(t, book.SourceGoogleBooks, nb.Source)
	assert.Equal(t, "B1hSG45JCX4C", nb.ExternalID)
	require.Len(t, nb.ImageLinks, 2)
	assert.Equal(t, book.ImageLarge, nb.ImageLinks[0].Type)
	assert.True(t, nb.ImageLinks[0].HighRes)
	assert.Equal(t, "https://books.google.com/large", nb.ImageLinks[0].URL)
	require.NotNil(t, nb.Dimensions)
	assert.Equal(t, "18.00 cm", nb.Dimensions.Height)

	n := nb.Normalize()
	assert.Equal(t, "9780441013593", n.ISBN13, "ISBN从industryIdentifiers补全")
	assert.Equal(t, "0441013597", n.ISBN10)
}

func TestGoogleBooks_NotFoundDoesNotTrip(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	gb := NewGoogleBooks(srv.URL, "", 0, time.Second, zap.NewNop())
	for i := 0; i < 8; i++ {
		_, err := gb.Fetch(context.Background(), "missing-volume")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.EqualValues(t, 8, atomic.LoadInt32(&calls), "无此记录不触发熔断")
}

func TestGoogleBooks_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gb := NewGoogleBooks(srv.URL, "", 0, time.Second, zap.NewNop())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := gb.Fetch(ctx, "vol")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeProviderError, apperrors.CodeOf(err))
	}

	_, err := gb.Fetch(ctx, "vol")
	assert.Equal(t, apperrors.ErrCodeProviderOpen, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls), "熔断后不再请求数据源")
}

func TestOpenLibrary_FetchEdition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/isbn/9780140328721.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"key": "/books/OL7353617M",
			"title": "Fantastic Mr. Fox",
			"authors": [{"key": "/authors/OL34184A"}],
			"publishers": ["Puffin"],
			"publish_date": "October 1, 1988",
			"isbn_13": ["9780140328721"],
			"isbn_10": ["0140328726"],
			"covers": [8739161],
			"number_of_pages": 96,
			"languages": [{"key": "/languages/eng"}],
			"description": {"type": "/type/text", "value": "A fox outwits three farmers."}
		}`))
	})
	mux.HandleFunc("/authors/OL34184A.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name": "Roald Dahl"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ol := NewOpenLibrary(srv.URL, "https://covers.example", 0, time.Second, zap.NewNop())
	nb, err := ol.Fetch(context.Background(), "isbn:9780140328721")
	require.NoError(t, err)

	assert.Equal(t, "OL7353617M", nb.ExternalID)
	assert.Equal(t, book.SourceOpenLibrary, nb.Source)
	assert.Equal(t, []string{"Roald Dahl"}, nb.Authors)
	assert.Equal(t, "Puffin", nb.Publisher)
	assert.Equal(t, "eng", nb.Language)
	assert.Equal(t, "A fox outwits three farmers.", nb.Description)
	require.Len(t, nb.ImageLinks, 3)
	assert.Equal(t, "https://covers.example/b/id/8739161-L.jpg", nb.ImageLinks[2].URL)
	assert.True(t, nb.ImageLinks[2].HighRes)
}

func TestBestsellerFeed_Current(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lists/current/hardcover-fiction.json", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api-key"))
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": {"books": [
				{"rank": 1, "title": "THE WOMEN", "author": "Kristin Hannah", "primary_isbn13": "9781250178633",
				 "book_image": "https://img/women.jpg", "book_image_width": 330, "book_image_height": 500},
				{"rank": 2, "title": "FOURTH WING", "author": "Rebecca Yarros and Someone Else", "primary_isbn10": "1649374046"}
			]}
		}`))
	}))
	defer srv.Close()

	feed := NewBestsellerFeed(srv.URL, "secret", "hardcover-fiction", 0, time.Second, zap.NewNop())
	entries, err := feed.Current(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "The Women", entries[0].Book.Title)
	assert.Equal(t, "9781250178633", entries[0].Book.ExternalID)
	assert.Equal(t, 330*500, entries[0].Book.ImageLinks[0].Area())
	assert.Equal(t, []string{"Rebecca Yarros", "Someone Else"}, entries[1].Book.Authors)
	assert.Equal(t, "1649374046", entries[1].Book.ExternalID)
}

func TestRegistryAndSourceID(t *testing.T) {
	gb := NewGoogleBooks("http://unused", "", 0, time.Second, zap.NewNop())
	reg := NewRegistry(gb)

	p, ok := reg.Get(" google_books ")
	require.True(t, ok)
	assert.Same(t, gb, p)
	_, ok = reg.Get("UNKNOWN")
	assert.False(t, ok)

	isbn, ok := ISBNFromSourceID("ISBN:978-0-14-032872-1")
	assert.True(t, ok)
	assert.Equal(t, "9780140328721", isbn)
	_, ok = ISBNFromSourceID("OL7353617M")
	assert.False(t, ok)
}
