package book

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSelectPrimary(t *testing.T) {
	t.Run("显式主版本优先", func(t *testing.T) {
		p, ok := SelectPrimary([]ClusterMember{
			{BookID: "a", CoverHighRes: true},
			{BookID: "b", IsPrimary: true},
		})
		require.True(t, ok)
		assert.Equal(t, "b", p.BookID)
	})

	t.Run("计算主版本的优先顺序", func(t *testing.T) {
		tests := []struct {
			name    string
			members []ClusterMember
			want    string
		}{
			{"高分辨率封面", []ClusterMember{{BookID: "a", CoverArea: 900}, {BookID: "b", CoverHighRes: true}}, "b"},
			{"封面面积", []ClusterMember{{BookID: "a", CoverArea: 100}, {BookID: "b", CoverArea: 900}}, "b"},
			{"置信度", []ClusterMember{{BookID: "a", Confidence: 0.5}, {BookID: "b", Confidence: 0.9}}, "b"},
			{"出版日期更近", []ClusterMember{{BookID: "a", PublishedDate: "1965"}, {BookID: "b", PublishedDate: "2005-08-02"}}, "b"},
			{"标题字典序", []ClusterMember{{BookID: "a", Title: "Dune (Ace)"}, {BookID: "b", Title: "Dune"}}, "b"},
			{"最后按ID", []ClusterMember{{BookID: "b"}, {BookID: "a"}}, "a"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p, ok := SelectPrimary(tt.members)
				require.True(t, ok)
				assert.Equal(t, tt.want, p.BookID)

				// 输入顺序不影响结果
				reversed := []ClusterMember{tt.members[1], tt.members[0]}
				p, _ = SelectPrimary(reversed)
				assert.Equal(t, tt.want, p.BookID)
			})
		}
	})

	t.Run("空簇", func(t *testing.T) {
		_, ok := SelectPrimary(nil)
		assert.False(t, ok)
	})
}

func TestRankMembers_DoesNotMutateInput(t *testing.T) {
	in := []ClusterMember{{BookID: "b"}, {BookID: "a"}}
	out := RankMembers(in)
	assert.Equal(t, "a", out[0].BookID)
	assert.Equal(t, "b", in[0].BookID)
}

func TestClusterer_Assign(t *testing.T) {
	ctx := context.Background()

	t.Run("没有13位ISBN不聚类", func(t *testing.T) {
		store := newMemStore()
		c := NewClusterer(memClusters{store}, store, store, false, zap.NewNop())
		cluster, err := c.Assign(ctx, &Book{ID: "x", ISBN10: "0441172717"})
		require.NoError(t, err)
		assert.Nil(t, cluster)
		assert.Empty(t, store.locked)
	})

	t.Run("加入已有簇并在无主版本时提升", func(t *testing.T) {
		store := newMemStore()
		store.clusters["c1"] = &WorkCluster{ID: "c1", Method: ClusterMethodISBNPrefix, ISBNPrefix: "97804411727", MemberCount: 1}
		store.books["old"] = &Book{ID: "old", ISBN13: "9780441172719"}
		store.addMemberLocked("c1", ClusterMember{BookID: "old", Confidence: PrefixConfidence})
		store.books["new"] = &Book{ID: "new", ISBN13: "9780441172702"}

		c := NewClusterer(memClusters{store}, store, store, true, zap.NewNop())
		cluster, err := c.Assign(ctx, store.books["new"])
		require.NoError(t, err)
		require.NotNil(t, cluster)
		assert.Equal(t, "c1", cluster.ID)
		assert.Equal(t, 2, cluster.MemberCount)
		assert.Equal(t, "new", cluster.PrimaryBookID)
		assert.Equal(t, PrefixConfidence, store.members["new"].Confidence)

		key, _ := PrefixLockKey("97804411727")
		assert.Contains(t, store.locked, key, "建簇前取前缀锁")
	})

	t.Run("已有主版本时不提升", func(t *testing.T) {
		store := newMemStore()
		store.clusters["c1"] = &WorkCluster{ID: "c1", ISBNPrefix: "97804411727", MemberCount: 1}
		store.books["old"] = &Book{ID: "old", ISBN13: "9780441172719"}
		store.addMemberLocked("c1", ClusterMember{BookID: "old", IsPrimary: true})
		store.books["new"] = &Book{ID: "new", ISBN13: "9780441172702"}

		c := NewClusterer(memClusters{store}, store, store, true, zap.NewNop())
		cluster, err := c.Assign(ctx, store.books["new"])
		require.NoError(t, err)
		assert.Equal(t, "old", cluster.PrimaryBookID)
		assert.False(t, store.members["new"].IsPrimary)
	})
}
