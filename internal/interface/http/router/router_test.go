package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appauth "github.com/xiebiao/bookcatalog/internal/application/auth"
	appbackfill "github.com/xiebiao/bookcatalog/internal/application/backfill"
	appbestseller "github.com/xiebiao/bookcatalog/internal/application/bestseller"
	appbook "github.com/xiebiao/bookcatalog/internal/application/book"
	"github.com/xiebiao/bookcatalog/internal/domain/backfill"
	"github.com/xiebiao/bookcatalog/internal/domain/book"
	"github.com/xiebiao/bookcatalog/internal/domain/search"
	"github.com/xiebiao/bookcatalog/internal/infrastructure/provider"
	"github.com/xiebiao/bookcatalog/internal/interface/http/handler"
	"github.com/xiebiao/bookcatalog/internal/interface/http/middleware"
	apperrors "github.com/xiebiao/bookcatalog/pkg/errors"
	"github.com/xiebiao/bookcatalog/pkg/jwt"
	"github.com/xiebiao/bookcatalog/pkg/throttle"
)

const bookID = "01920000-0000-7000-8000-0000000000aa"

// catalogStub 一本书的内存目录
type catalogStub struct {
	book.Service
	upserts []book.NormalizedBook
}

func (s *catalogStub) Upsert(ctx context.Context, in book.NormalizedBook) (*book.UpsertResult, error) {
	if in.Title == "" {
		return nil, book.ErrTitleRequired
	}
	s.upserts = append(s.upserts, in)
	return &book.UpsertResult{BookID: bookID, Slug: "dune-frank-herbert", IsNew: len(s.upserts) == 1}, nil
}

func (s *catalogStub) GetBook(ctx context.Context, idOrSlug string) (*book.Book, error) {
	if idOrSlug != bookID && idOrSlug != "dune-frank-herbert" {
		return nil, book.ErrBookNotFound
	}
	return &book.Book{ID: bookID, Slug: "dune-frank-herbert", Title: "Dune", Authors: []string{"Frank Herbert"}}, nil
}

func (s *catalogStub) ListEditions(ctx context.Context, id string) (*book.WorkCluster, []book.ClusterMember, error) {
	return nil, nil, book.ErrNotClustered
}

func (s *catalogStub) ExternalIDs(ctx context.Context, id string) (map[string]string, error) {
	return map[string]string{book.SourceGoogleBooks: "B1yHPwAACAAJ"}, nil
}

func (s *catalogStub) ResolveExternalID(ctx context.Context, source, externalID string) (string, error) {
	if source == book.SourceGoogleBooks && externalID == "B1yHPwAACAAJ" {
		return bookID, nil
	}
	return "", book.ErrMappingNotFound
}

type searcherStub struct{}

func (searcherStub) Search(ctx context.Context, query string, limit int) ([]search.SearchHit, error) {
	return []search.SearchHit{{BookID: bookID, Title: "Dune", Authors: []string{"Frank Herbert"}, ISBN13: "9780441013593", Score: 1}}, nil
}

type feedStub struct{}

func (feedStub) Current(ctx context.Context, list string) ([]provider.BestsellerEntry, error) {
	return []provider.BestsellerEntry{{Rank: 1, Book: book.NormalizedBook{Title: "Dune", ISBN13: "9780441013593"}}}, nil
}

type denylistStub map[string]bool

func (d denylistStub) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return d[tokenID], nil
}

func (d denylistStub) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	d[tokenID] = true
	return nil
}

type testServer struct {
	engine  *gin.Engine
	jwt     *jwt.Manager
	catalog *catalogStub
	queue   *backfill.Queue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	catalog := &catalogStub{}
	queue := backfill.NewQueue(0)
	manager := jwt.NewManager("test-secret", time.Hour, "bookcatalog")
	denylist := denylistStub{}

	bookHandler := handler.NewBookHandler(
		appbook.NewIngestBookUseCase(catalog),
		appbook.NewSearchBooksUseCase(searcherStub{}, search.NewDeduplicator(nil, logger), queue, logger),
		appbook.NewGetBookUseCase(catalog, nil, logger),
		appbook.NewListEditionsUseCase(catalog),
		appbook.NewExternalIDsUseCase(catalog),
	)
	adminHandler := handler.NewAdminHandler(
		appbackfill.NewScheduleUseCase(queue),
		appbestseller.NewSyncUseCase(feedStub{}, catalog, queue, throttle.New(time.Hour), logger),
		appauth.NewTokenUseCase(manager, denylist, time.Hour, logger),
	)
	engine := New(Options{Mode: gin.TestMode}, logger, bookHandler, adminHandler, middleware.NewAuthMiddleware(manager, denylist))
	return &testServer{engine: engine, jwt: manager, catalog: catalog, queue: queue}
}

func (s *testServer) token(t *testing.T, scopes ...string) *jwt.Issued {
	t.Helper()
	issued, err := s.jwt.GenerateToken("test-suite", scopes)
	require.NoError(t, err)
	return issued
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestPing_SetsRequestID(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, env.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestIngest_Auth(t *testing.T) {
	s := newTestServer(t)
	body := map[string]interface{}{"title": "Dune", "isbn13": "9780441013593"}

	_, env := s.do(t, http.MethodPost, "/api/v1/books", "", body)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/books", "not-a-jwt", body)
	assert.Equal(t, apperrors.ErrCodeInvalidToken, env.Code)

	_, env = s.do(t, http.MethodPost, "/api/v1/books", s.token(t, jwt.ScopeSync).Token, body)
	assert.Equal(t, apperrors.ErrCodeForbidden, env.Code)
	assert.Empty(t, s.catalog.upserts)
}

func TestIngest_Success(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, jwt.ScopeIngest).Token

	_, env := s.do(t, http.MethodPost, "/api/v1/books", token, map[string]interface{}{
		"title":       "Dune",
		"authors":     []string{"Frank Herbert"},
		"isbn13":      "978-0-441-01359-3",
		"source":      "GOOGLE_BOOKS",
		"external_id": "B1yHPwAACAAJ",
		"image_links": []map[string]interface{}{{"type": "thumbnail", "url": "https://books.google.com/t.jpg"}},
		"dimensions":  map[string]string{"height": "24.00 cm"},
	})
	require.Zero(t, env.Code, env.Message)

	var result appbook.IngestBookResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, bookID, result.BookID)
	assert.True(t, result.IsNew)

	require.Len(t, s.catalog.upserts, 1)
	in := s.catalog.upserts[0]
	require.NotNil(t, in.Dimensions)
	assert.Equal(t, "24.00 cm", in.Dimensions.Height)
	require.Len(t, in.ImageLinks, 1)
	assert.Equal(t, "GOOGLE_BOOKS", in.ImageLinks[0].Provider)

	// 缺少标题在绑定阶段拒绝
	_, env = s.do(t, http.MethodPost, "/api/v1/books", token, map[string]interface{}{"isbn13": "9780441013593"})
	assert.Equal(t, apperrors.ErrCodeInvalidParams, env.Code)
}

func TestRevokedTokenRejected(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, jwt.ScopeAdmin)
	victim := s.token(t, jwt.ScopeIngest)

	_, env := s.do(t, http.MethodPost, "/api/v1/tokens/revoke", admin.Token, map[string]string{"token_id": victim.TokenID})
	require.Zero(t, env.Code, env.Message)

	_, env = s.do(t, http.MethodPost, "/api/v1/books", victim.Token, map[string]string{"title": "Dune"})
	assert.Equal(t, apperrors.ErrCodeTokenRevoked, env.Code)
}

func TestIssueToken(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, jwt.ScopeAdmin)

	_, env := s.do(t, http.MethodPost, "/api/v1/tokens", admin.Token, map[string]interface{}{
		"service": "nyt-crawler",
		"scopes":  []string{jwt.ScopeIngest},
	})
	require.Zero(t, env.Code, env.Message)

	var issued jwt.Issued
	require.NoError(t, json.Unmarshal(env.Data, &issued))
	claims, err := s.jwt.ParseToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "nyt-crawler", claims.Service)
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodGet, "/api/v1/books/dune-frank-herbert", "", nil)
	require.Zero(t, env.Code, env.Message)
	var detail appbook.BookDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, bookID, detail.ID)

	_, env = s.do(t, http.MethodGet, "/api/v1/books/missing", "", nil)
	assert.Equal(t, apperrors.ErrCodeBookNotFound, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/books/"+bookID+"/editions", "", nil)
	require.Zero(t, env.Code, env.Message)
	var editions appbook.ListEditionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &editions))
	assert.Len(t, editions.Editions, 1)

	_, env = s.do(t, http.MethodGet, "/api/v1/books/"+bookID+"/external-ids", "", nil)
	require.Zero(t, env.Code, env.Message)
	var reverse appbook.ReverseResponse
	require.NoError(t, json.Unmarshal(env.Data, &reverse))
	assert.Equal(t, "B1yHPwAACAAJ", reverse.ExternalIDs[book.SourceGoogleBooks])

	_, env = s.do(t, http.MethodGet, "/api/v1/external-ids/google_books/B1yHPwAACAAJ", "", nil)
	require.Zero(t, env.Code, env.Message)

	_, env = s.do(t, http.MethodGet, "/api/v1/external-ids/OPEN_LIBRARY/OL1M", "", nil)
	assert.Equal(t, apperrors.ErrCodeMappingNotFound, env.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodGet, "/api/v1/books/search", "", nil)
	assert.Equal(t, apperrors.ErrCodeInvalidParams, env.Code, "缺少q参数")

	_, env = s.do(t, http.MethodGet, "/api/v1/books/search?q=dune&limit=5", "", nil)
	require.Zero(t, env.Code, env.Message)
	var result appbook.SearchBooksResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Results, 1)
	assert.Equal(t, 1, result.Scheduled)
	assert.Equal(t, 1, s.queue.Len())
}

func TestScheduleBackfillAndSync(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/backfill", s.token(t, jwt.ScopeBackfill).Token, map[string]string{
		"source":    "OPEN_LIBRARY",
		"source_id": "OL7353617M",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Zero(t, env.Code, env.Message)
	var scheduled appbackfill.ScheduleResponse
	require.NoError(t, json.Unmarshal(env.Data, &scheduled))
	assert.True(t, scheduled.Enqueued)

	_, env = s.do(t, http.MethodPost, "/api/v1/backfill", s.token(t, jwt.ScopeBackfill).Token, map[string]string{
		"source":    "AMAZON",
		"source_id": "x",
	})
	assert.Equal(t, apperrors.ErrCodeInvalidParams, env.Code)

	syncToken := s.token(t, jwt.ScopeSync).Token
	_, env = s.do(t, http.MethodPost, "/api/v1/bestsellers/sync", syncToken, nil)
	require.Zero(t, env.Code, env.Message)

	_, env = s.do(t, http.MethodPost, "/api/v1/bestsellers/sync", syncToken, nil)
	assert.Equal(t, apperrors.ErrCodeThrottled, env.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/ping", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
