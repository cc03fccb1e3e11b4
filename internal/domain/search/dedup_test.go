package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiebiao/bookcatalog/internal/domain/book"
)

type stubClusters struct {
	memberships map[string]Membership
	err         error
}

func (s stubClusters) Memberships(ctx context.Context, bookIDs []string) (map[string]Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]Membership)
	for _, id := range bookIDs {
		if m, ok := s.memberships[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func TestDeduplicate_ClusterMerge(t *testing.T) {
	primary := book.ClusterMember{BookID: "A", Title: "Dune", Slug: "dune-frank-herbert", IsPrimary: true}
	m := Membership{ClusterID: "C", MemberCount: 3, Primary: primary}
	d := NewDeduplicator(stubClusters{memberships: map[string]Membership{"A": m, "B": m}}, zap.NewNop())

	out := d.Deduplicate(context.Background(), []SearchHit{
		{BookID: "B", Title: "Dune (Paperback)", Score: 0.7, MatchType: MatchTitle},
		{BookID: "A", Title: "Dune", Score: 0.9, MatchType: MatchISBN, Sources: []string{book.SourceGoogleBooks}},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].BookID, "合并后以主版本为键")
	assert.Equal(t, "Dune", out[0].Title)
	assert.Equal(t, "C", out[0].ClusterID)
	assert.Equal(t, 3, out[0].EditionCount, "版本数取簇成员数")
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, MatchISBN, out[0].MatchType, "匹配类型跟随最高分")
	assert.True(t, out[0].HasSource(book.SourceGoogleBooks))
}

func TestDeduplicate_TitleAuthorFallback(t *testing.T) {
	d := NewDeduplicator(stubClusters{}, zap.NewNop())

	out := d.Deduplicate(context.Background(), []SearchHit{
		{BookID: "1", Title: "Dune", Authors: []string{"Frank Herbert"}, Score: 0.5, MatchType: MatchTitle, EditionCount: 2},
		{BookID: "2", Title: "DUNE!", Authors: []string{"frank  herbert"}, Score: 0.8, MatchType: MatchAuthor, EditionCount: 3},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].BookID, "保留首次出现的命中")
	assert.Equal(t, 5, out[0].EditionCount, "第二轮版本数求和")
	assert.Equal(t, 0.8, out[0].Score)
	assert.Equal(t, MatchAuthor, out[0].MatchType)
}

func TestDeduplicate_PreservesFirstOccurrenceOrder(t *testing.T) {
	d := NewDeduplicator(stubClusters{}, zap.NewNop())

	out := d.Deduplicate(context.Background(), []SearchHit{
		{BookID: "1", Title: "Emma", Authors: []string{"Jane Austen"}, Score: 0.9},
		{BookID: "2", Title: "Persuasion", Authors: []string{"Jane Austen"}, Score: 0.6},
		{BookID: "3", Title: "Emma", Authors: []string{"Jane Austen"}, Score: 0.3},
		{BookID: "4", Title: "Persuasion", Authors: []string{"Jane Austen"}, Score: 0.95},
	})

	require.Len(t, out, 2)
	assert.Equal(t, []string{"1", "2"}, []string{out[0].BookID, out[1].BookID}, "不按合并后的分数重排")
	assert.Equal(t, 0.95, out[1].Score)
}

func TestDeduplicate_UntitledHitsPassThrough(t *testing.T) {
	d := NewDeduplicator(nil, zap.NewNop())

	out := d.Deduplicate(context.Background(), []SearchHit{
		{BookID: "1", Score: 0.4},
		{BookID: "2", Title: "  ", Score: 0.3},
		{BookID: "3", Score: 0.2, EditionCount: 0},
	})

	require.Len(t, out, 3)
	for _, h := range out {
		assert.Equal(t, 1, h.EditionCount, "版本数至少为1")
	}
}

func TestDeduplicate_ClusterLookupFailureDegrades(t *testing.T) {
	d := NewDeduplicator(stubClusters{err: errors.New("db down")}, zap.NewNop())

	out := d.Deduplicate(context.Background(), []SearchHit{
		{BookID: "A", Title: "Dune", Authors: []string{"Frank Herbert"}, Score: 0.9},
		{BookID: "B", Title: "Dune", Authors: []string{"Frank Herbert"}, Score: 0.7},
	})

	require.Len(t, out, 1, "降级后仍按标题作者合并")
	assert.Equal(t, 2, out[0].EditionCount)
}

func TestDeduplicate_ClusteredHitsSkipPassTwo(t *testing.T) {
	m := Membership{ClusterID: "C", MemberCount: 2, Primary: book.ClusterMember{BookID: "A", Title: "Dune"}}
	d := NewDeduplicator(stubClusters{memberships: map[string]Membership{"A": m}}, zap.NewNop())

	out := d.Deduplicate(context.Background(), []SearchHit{
		{BookID: "A", Title: "Dune", Authors: []string{"Frank Herbert"}, Score: 0.9},
		{BookID: "X", Title: "Dune", Authors: []string{"Frank Herbert"}, Score: 0.5},
	})

	require.Len(t, out, 2, "已聚类的命中不参与第二轮")
	assert.Equal(t, 2, out[0].EditionCount)
	assert.Equal(t, 1, out[1].EditionCount)
}

func TestTitleAuthorKey(t *testing.T) {
	key, ok := TitleAuthorKey("Dune", []string{"Frank Herbert", "Brian Herbert"})
	assert.True(t, ok)
	assert.Equal(t, "dune::frankherbert", key)

	key, _ = TitleAuthorKey("Les Misérables", []string{"Victor Hugo"})
	assert.Equal(t, "lesmiserables::victorhugo", key)

	_, ok = TitleAuthorKey("", []string{"Anon"})
	assert.False(t, ok)
}
