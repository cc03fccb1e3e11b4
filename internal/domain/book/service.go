package book

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/pkg/metrics"
	"github.com/xiebiao/bookcatalog/pkg/tracing"
)

const tracerName = "bookcatalog/domain/book"

// Service 图书领域服务接口
type Service interface {
	// Upsert 规范化写入：解析标识、合并属性、聚类、写发件箱，全部在一个事务内
	// 相同标识的并发调用收敛到同一个BookID，且只有一个调用看到IsNew=true
	Upsert(ctx context.Context, in NormalizedBook) (*UpsertResult, error)

	// GetBook 按ID或slug获取图书
	GetBook(ctx context.Context, idOrSlug string) (*Book, error)

	// ListEditions 图书所在作品簇的全部版本，主版本在前
	ListEditions(ctx context.Context, bookID string) (*WorkCluster, []ClusterMember, error)

	// ExternalIDs bookId → {source: externalId}
	ExternalIDs(ctx context.Context, bookID string) (map[string]string, error)

	// ResolveExternalID (source, externalId) → bookId
	ResolveExternalID(ctx context.Context, source, externalID string) (string, error)
}

// Options 服务参数
type Options struct {
	TxTimeout       time.Duration // 整个upsert（含等锁）的时限，0表示不限
	MaxSlugAttempts int           // slug消歧的最大尝试次数
}

// Deps 服务依赖
// Index用于只读查询，可以是带缓存的实现；事务内的解析只走ExternalIDs
type Deps struct {
	Tx          TxManager
	Gate        IdentityGate
	Books       Repository
	ExternalIDs ExternalIDRepository
	Index       ExternalIDIndex
	Clusters    ClusterRepository
	Outbox      OutboxRepository
	Clusterer   *Clusterer
}

type service struct {
	deps     Deps
	resolver *Resolver
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService 创建图书领域服务
func NewService(deps Deps, opts Options, logger *zap.Logger) Service {
	if deps.Index == nil {
		deps.Index = deps.ExternalIDs
	}
	if opts.MaxSlugAttempts <= 0 {
		opts.MaxSlugAttempts = 50
	}
	return &service{
		deps:     deps,
		resolver: NewResolver(deps.Books, deps.ExternalIDs, deps.Clusters),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Upsert 规范化写入
// 流程（同一个事务）:
// 1. 计算锁键并获取事务级锁（无标识时跳过并告警）
// 2. 解析标识，未命中则生成UUIDv7
// 3. 新书分配slug；已有图书保留原slug
// 4. 带新鲜度保护地合并核心字段
// 5. 幂等合并作者、分类、外部标识、图片、尺寸
// 6. 新书聚类
// 7. 写发件箱事件（最后一步）
func (s *service) Upsert(ctx context.Context, in NormalizedBook) (result *UpsertResult, err error) {
	if bad := in.InvalidISBNs(); len(bad) > 0 {
		s.logger.Warn("invalid isbn dropped",
			zap.Strings("isbn", bad),
			zap.String("source", in.Source),
			zap.String("external_id", in.ExternalID))
	}
	in = in.Normalize()
	if in.Title == "" {
		return nil, ErrTitleRequired
	}

	start := s.now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "book.Upsert")
	defer func() {
		tracing.EndSpan(span, err)
		switch {
		case err != nil:
			metrics.RecordUpsert("failed", time.Since(start))
		case result.IsNew:
			metrics.RecordUpsert("created", time.Since(start))
		default:
			metrics.RecordUpsert("updated", time.Since(start))
		}
	}()

	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	key, hasKey := DeriveLockKey(in.ISBN13, in.ISBN10, in.Source, in.ExternalID)
	if !hasKey {
		// 没有任何标识：不加锁直接写，并发时可能产生重复行
		s.logger.Warn("identity ambiguity: record carries no identifiers, upserting without lock",
			zap.String("title", in.Title),
			zap.String("source", in.Source))
		metrics.IncIdentityAmbiguity()
	}

	err = s.deps.Tx.Transaction(ctx, func(txCtx context.Context) error {
		if hasKey {
			waitStart := time.Now()
			if err := s.deps.Gate.Acquire(txCtx, key); err != nil {
				return LockError(err)
			}
			metrics.ObserveLockWait(time.Since(waitStart))
		}

		res, err := s.upsertLocked(txCtx, &in)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockAcquisition) {
			s.logger.Warn("identity lock acquisition failed", zap.Int64("lock_key", key), zap.Error(err))
			return nil, err
		}
		s.logger.Error("book upsert failed",
			zap.String("title", in.Title),
			zap.String("isbn13", in.ISBN13),
			zap.String("source", in.Source),
			zap.Error(err))
		return nil, PersistenceError(err)
	}
	return result, nil
}

func (s *service) upsertLocked(ctx context.Context, in *NormalizedBook) (*UpsertResult, error) {
	res, err := s.resolver.Resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	var (
		b      *Book
		isNew  = !res.Found()
		images []ImageLink
	)

	if isNew {
		id, err := NewID()
		if err != nil {
			return nil, err
		}
		b = newBookFrom(id, "", in, s.now())

		merged, _ := MergeImageLinks(nil, in.ImageLinks)
		images = merged
		if cover, ok := CanonicalImage(merged); ok {
			b.CoverImageURL = cover.URL
		}
		if err := s.createWithSlug(ctx, b); err != nil {
			return nil, err
		}
		for _, l := range merged {
			if err := s.deps.Books.SaveImageLink(ctx, b.ID, l); err != nil {
				return nil, err
			}
		}
	} else {
		b, err = s.deps.Books.FindByID(ctx, res.BookID)
		if err != nil {
			return nil, err
		}
		changed := b.MergeCore(in)

		isbnChanged, err := s.fillNaturalKeys(ctx, b, in)
		if err != nil {
			return nil, err
		}
		changed = changed || isbnChanged

		if b.Slug == "" {
			if b.Slug, err = s.allocateSlug(ctx, b.ID, b.Title, b.Authors); err != nil {
				return nil, err
			}
			changed = true
		}

		merged, updates := MergeImageLinks(b.ImageLinks, in.ImageLinks)
		images = merged
		for _, l := range updates {
			if err := s.deps.Books.SaveImageLink(ctx, b.ID, l); err != nil {
				return nil, err
			}
		}
		if cover, ok := CanonicalImage(merged); ok && cover.URL != b.CoverImageURL {
			b.CoverImageURL = cover.URL
			changed = true
		}

		if changed {
			b.UpdatedAt = s.now()
			if err := s.deps.Books.UpdateCore(ctx, b); err != nil {
				return nil, err
			}
		}
	}

	if err := s.deps.Books.MergeAuthors(ctx, b.ID, in.Authors); err != nil {
		return nil, err
	}
	if err := s.deps.Books.MergeCategories(ctx, b.ID, in.Categories); err != nil {
		return nil, err
	}
	if err := s.linkExternalIDs(ctx, b.ID, in.Refs()); err != nil {
		return nil, err
	}
	if in.Dimensions != nil && !in.Dimensions.IsEmpty() {
		var current Dimensions
		if b.Dimensions != nil {
			current = *b.Dimensions
		}
		if merged, changed := current.Merge(*in.Dimensions); changed {
			if err := s.deps.Books.SaveDimensions(ctx, b.ID, merged); err != nil {
				return nil, err
			}
		}
	}

	var clusterID string
	if isNew && s.deps.Clusterer != nil {
		cluster, err := s.deps.Clusterer.Assign(ctx, b)
		if err != nil {
			return nil, err
		}
		if cluster != nil {
			clusterID = cluster.ID
		}
	}

	if err := s.appendEvent(ctx, b, isNew, in.Source, images, clusterID); err != nil {
		return nil, err
	}

	s.logger.Info("book upserted",
		zap.String("book_id", b.ID),
		zap.String("slug", b.Slug),
		zap.Bool("is_new", isNew),
		zap.String("matched_by", res.Via),
		zap.String("source", in.Source))

	return &UpsertResult{BookID: b.ID, Slug: b.Slug, IsNew: isNew}, nil
}

// fillNaturalKeys 已有图书缺少ISBN时补写
// ISBN已被其它图书占用属于数据质量问题，只记录不处理
func (s *service) fillNaturalKeys(ctx context.Context, b *Book, in *NormalizedBook) (bool, error) {
	changed := false
	if b.ISBN13 == "" && in.ISBN13 != "" {
		owner, ok, err := s.deps.Books.FindIDByISBN13(ctx, in.ISBN13)
		if err != nil {
			return false, err
		}
		if !ok {
			b.ISBN13 = in.ISBN13
			changed = true
		} else if owner != b.ID {
			s.logger.Warn("isbn13 already held by another book",
				zap.String("book_id", b.ID), zap.String("owner_id", owner), zap.String("isbn13", in.ISBN13))
		}
	}
	if b.ISBN10 == "" && in.ISBN10 != "" {
		owner, ok, err := s.deps.Books.FindIDByISBN10(ctx, in.ISBN10)
		if err != nil {
			return false, err
		}
		if !ok {
			b.ISBN10 = in.ISBN10
			changed = true
		} else if owner != b.ID {
			s.logger.Warn("isbn10 already held by another book",
				zap.String("book_id", b.ID), zap.String("owner_id", owner), zap.String("isbn10", in.ISBN10))
		}
	}
	return changed, nil
}

// linkExternalIDs 映射只插入不更新
func (s *service) linkExternalIDs(ctx context.Context, bookID string, refs []ExternalRef) error {
	for _, ref := range refs {
		owner, ok, err := s.deps.ExternalIDs.Resolve(ctx, ref.Source, ref.ID)
		if err != nil {
			return err
		}
		if ok {
			if owner != bookID {
				s.logger.Warn("external id anomaly: mapping points to another book",
					zap.String("source", ref.Source),
					zap.String("external_id", ref.ID),
					zap.String("mapped_book_id", owner),
					zap.String("resolved_book_id", bookID))
			}
			continue
		}
		linked, err := s.deps.ExternalIDs.Link(ctx, bookID, ref.Source, ref.ID)
		if err != nil {
			return err
		}
		if !linked {
			s.logger.Warn("external id anomaly: book already mapped for source",
				zap.String("book_id", bookID),
				zap.String("source", ref.Source),
				zap.String("external_id", ref.ID))
		}
	}
	return nil
}

// allocateSlug base, base-2, base-3 ... 依次尝试
// 只用于补写已有图书的slug；新书走createWithSlug
func (s *service) allocateSlug(ctx context.Context, id, title string, authors []string) (string, error) {
	slug, _, err := s.nextFreeSlug(ctx, Slugify(title, authors), id, 1)
	return slug, err
}

// nextFreeSlug 从第from个候选开始找未占用的slug，返回slug及其序号
// 候选用尽时以ID随机位结尾，序号为MaxSlugAttempts+1
func (s *service) nextFreeSlug(ctx context.Context, base, id string, from int) (string, int, error) {
	for n := from; n <= s.opts.MaxSlugAttempts; n++ {
		candidate := SlugCandidate(base, n)
		exists, err := s.deps.Books.SlugExists(ctx, candidate)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return candidate, n, nil
		}
	}
	// UUIDv7末尾是随机位
	return base + "-" + id[len(id)-12:], s.opts.MaxSlugAttempts + 1, nil
}

// createWithSlug 插入新书，slug冲突时换下一个候选
// 不同ISBN的同名版本持有不同的标识锁，预查询看不到对方未提交的slug，
// 冲突只能在插入时发现
func (s *service) createWithSlug(ctx context.Context, b *Book) error {
	base := Slugify(b.Title, b.Authors)
	for from := 1; ; {
		slug, n, err := s.nextFreeSlug(ctx, base, b.ID, from)
		if err != nil {
			return err
		}
		b.Slug = slug
		err = s.deps.Books.Create(ctx, b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrSlugTaken) || n > s.opts.MaxSlugAttempts {
			return err
		}
		s.logger.Info("slug taken by concurrent insert, trying next candidate",
			zap.String("book_id", b.ID), zap.String("slug", slug))
		from = n + 1
	}
}

func (s *service) appendEvent(ctx context.Context, b *Book, isNew bool, source string, images []ImageLink, clusterID string) error {
	eventID, err := NewID()
	if err != nil {
		return err
	}
	evt := &UpsertedEvent{
		EventID:    eventID,
		BookID:     b.ID,
		Slug:       b.Slug,
		IsNew:      isNew,
		Source:     source,
		ImageURL:   b.CoverImageURL,
		ImageLinks: ImageURLMap(images),
		ClusterID:  clusterID,
		OccurredAt: s.now(),
	}
	record, err := evt.ToOutbox()
	if err != nil {
		return err
	}
	return s.deps.Outbox.Append(ctx, record)
}

// GetBook 先按ID查找，再按slug查找
func (s *service) GetBook(ctx context.Context, idOrSlug string) (*Book, error) {
	b, err := s.deps.Books.FindByID(ctx, idOrSlug)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrBookNotFound) {
		return nil, err
	}
	return s.deps.Books.FindBySlug(ctx, idOrSlug)
}

// ListEditions 图书不在任何簇中时返回ErrNotClustered
func (s *service) ListEditions(ctx context.Context, bookID string) (*WorkCluster, []ClusterMember, error) {
	cluster, err := s.deps.Clusters.FindByBookID(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	if cluster == nil {
		return nil, nil, ErrNotClustered
	}
	members, err := s.deps.Clusters.Members(ctx, cluster.ID)
	if err != nil {
		return nil, nil, err
	}
	return cluster, RankMembers(members), nil
}

// ExternalIDs 反向查询
func (s *service) ExternalIDs(ctx context.Context, bookID string) (map[string]string, error) {
	return s.deps.Index.Reverse(ctx, bookID)
}

// ResolveExternalID 正向查询
func (s *service) ResolveExternalID(ctx context.Context, source, externalID string) (string, error) {
	id, ok, err := s.deps.Index.Resolve(ctx, source, externalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrMappingNotFound
	}
	return id, nil
}
