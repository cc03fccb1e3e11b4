package book

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// memStore 内存实现，用于领域服务测试
// Transaction用一把全局锁串行化，足以覆盖单进程的语义
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	books    map[string]*Book
	extIDs   map[string]string // source|id → bookID
	clusters map[string]*WorkCluster
	members  map[string]ClusterMember // bookID → member
	memberOf map[string]string        // bookID → clusterID
	outbox   []*OutboxEvent
	locked   []int64

	gateErr error
}

func newMemStore() *memStore {
	return &memStore{
		books:    make(map[string]*Book),
		extIDs:   make(map[string]string),
		clusters: make(map[string]*WorkCluster),
		members:  make(map[string]ClusterMember),
		memberOf: make(map[string]string),
	}
}

func (m *memStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

func (m *memStore) Acquire(ctx context.Context, key int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gateErr != nil {
		return m.gateErr
	}
	m.locked = append(m.locked, key)
	return nil
}

func (m *memStore) FindIDByISBN13(ctx context.Context, isbn13 string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN13 == isbn13 {
			return b.ID, true, nil
		}
	}
	return "", false, nil
}

func (m *memStore) FindIDByISBN10(ctx context.Context, isbn10 string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN10 == isbn10 {
			return b.ID, true, nil
		}
	}
	return "", false, nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	cp := *b
	cp.Authors = append([]string(nil), b.Authors...)
	cp.Categories = append([]string(nil), b.Categories...)
	cp.ImageLinks = append([]ImageLink(nil), b.ImageLinks...)
	return &cp, nil
}

func (m *memStore) FindBySlug(ctx context.Context, slug string) (*Book, error) {
	m.mu.Lock()
	var id string
	for _, b := range m.books {
		if b.Slug == slug {
			id = b.ID
		}
	}
	m.mu.Unlock()
	if id == "" {
		return nil, ErrBookNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *memStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(ctx context.Context, b *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; ok {
		return errors.New("duplicate id")
	}
	for _, other := range m.books {
		if other.Slug == b.Slug {
			return ErrSlugTaken
		}
	}
	cp := *b
	cp.Authors, cp.Categories, cp.ImageLinks = nil, nil, nil
	m.books[b.ID] = &cp
	return nil
}

func (m *memStore) UpdateCore(ctx context.Context, b *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.books[b.ID]
	if !ok {
		return ErrBookNotFound
	}
	authors, cats, links, dims := cur.Authors, cur.Categories, cur.ImageLinks, cur.Dimensions
	cp := *b
	cp.Authors, cp.Categories, cp.ImageLinks, cp.Dimensions = authors, cats, links, dims
	m.books[b.ID] = &cp
	return nil
}

func (m *memStore) MergeAuthors(ctx context.Context, bookID string, authors []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.books[bookID]
	b.Authors = mergeNames(b.Authors, authors)
	return nil
}

func (m *memStore) MergeCategories(ctx context.Context, bookID string, categories []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.books[bookID]
	b.Categories = mergeNames(b.Categories, categories)
	return nil
}

func mergeNames(cur, in []string) []string {
	seen := make(map[string]bool, len(cur))
	for _, c := range cur {
		seen[strings.ToLower(c)] = true
	}
	for _, v := range in {
		if !seen[strings.ToLower(v)] {
			seen[strings.ToLower(v)] = true
			cur = append(cur, v)
		}
	}
	return cur
}

func (m *memStore) SaveImageLink(ctx context.Context, bookID string, link ImageLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.books[bookID]
	for i, l := range b.ImageLinks {
		if l.Type == link.Type {
			b.ImageLinks[i] = link
			return nil
		}
	}
	b.ImageLinks = append(b.ImageLinks, link)
	return nil
}

func (m *memStore) SaveDimensions(ctx context.Context, bookID string, d Dimensions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[bookID].Dimensions = &d
	return nil
}

func (m *memStore) FindUnclusteredByISBNPrefix(ctx context.Context, prefix, excludeID string) ([]*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Book
	for _, b := range m.books {
		if b.ID == excludeID || !strings.HasPrefix(b.ISBN13, prefix) || len(b.ISBN13) != 13 {
			continue
		}
		if _, ok := m.memberOf[b.ID]; ok {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) Resolve(ctx context.Context, source, externalID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.extIDs[source+"|"+externalID]
	return id, ok, nil
}

func (m *memStore) Reverse(ctx context.Context, bookID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.extIDs {
		if v == bookID {
			parts := strings.SplitN(k, "|", 2)
			out[parts[0]] = parts[1]
		}
	}
	return out, nil
}

func (m *memStore) Link(ctx context.Context, bookID, source, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.extIDs[source+"|"+externalID]; ok {
		return false, nil
	}
	for k, v := range m.extIDs {
		if v == bookID && strings.HasPrefix(k, source+"|") {
			return false, nil
		}
	}
	m.extIDs[source+"|"+externalID] = bookID
	return true, nil
}

func (m *memStore) FindByPrefix(ctx context.Context, prefix string) (*WorkCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clusters {
		if c.ISBNPrefix == prefix {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByBookID(ctx context.Context, bookID string) (*WorkCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cid, ok := m.memberOf[bookID]
	if !ok {
		return nil, nil
	}
	cp := *m.clusters[cid]
	return &cp, nil
}

func (m *memStore) addMemberLocked(clusterID string, member ClusterMember) {
	m.members[member.BookID] = member
	m.memberOf[member.BookID] = clusterID
	if member.IsPrimary {
		m.clusters[clusterID].PrimaryBookID = member.BookID
	}
}

func (m *memStore) Members(ctx context.Context, clusterID string) ([]ClusterMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ClusterMember
	for bookID, cid := range m.memberOf {
		if cid != clusterID {
			continue
		}
		mem := m.members[bookID]
		b := m.books[bookID]
		mem.Title, mem.Slug, mem.ISBN13, mem.PublishedDate = b.Title, b.Slug, b.ISBN13, b.PublishedDate
		if cover, ok := CanonicalImage(b.ImageLinks); ok {
			mem.CoverURL, mem.CoverHighRes, mem.CoverArea = cover.URL, cover.HighRes, cover.Area()
		}
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (m *memStore) Append(ctx context.Context, e *OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, e)
	return nil
}

// memClusters 把ClusterRepository的Create/AddMember与Repository的Create区分开
type memClusters struct{ *memStore }

func (c memClusters) Create(ctx context.Context, cluster *WorkCluster, members []ClusterMember) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *cluster
	cp.PrimaryBookID = ""
	c.clusters[cluster.ID] = &cp
	for _, mem := range members {
		c.addMemberLocked(cluster.ID, mem)
	}
	return nil
}

func (c memClusters) AddMember(ctx context.Context, clusterID string, member ClusterMember) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addMemberLocked(clusterID, member)
	c.clusters[clusterID].MemberCount++
	return nil
}

func newTestService(store *memStore, promoteFirst bool) Service {
	clusters := memClusters{store}
	deps := Deps{
		Tx:          store,
		Gate:        store,
		Books:       store,
		ExternalIDs: store,
		Clusters:    clusters,
		Outbox:      store,
	}
	deps.Clusterer = NewClusterer(clusters, store, store, promoteFirst, zap.NewNop())
	return NewService(deps, Options{}, zap.NewNop())
}
