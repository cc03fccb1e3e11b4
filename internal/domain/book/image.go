package book

// 图片类型（与Google Books imageLinks的键保持一致）
const (
	ImageSmallThumbnail = "smallThumbnail"
	ImageThumbnail      = "thumbnail"
	ImageSmall          = "small"
	ImageMedium         = "medium"
	ImageLarge          = "large"
	ImageExtraLarge     = "extraLarge"
)

var imageTypeRank = map[string]int{
	ImageSmallThumbnail: 1,
	ImageThumbnail:      2,
	ImageSmall:          3,
	ImageMedium:         4,
	ImageLarge:          5,
	ImageExtraLarge:     6,
}

// ImageLink 单个封面图片
// (book_id, Type) 唯一
type ImageLink struct {
	Type     string
	URL      string
	S3Path   string
	Width    int
	Height   int
	HighRes  bool
	Provider string
}

// Area 像素面积，尺寸未知时为0
func (l ImageLink) Area() int {
	if l.Width <= 0 || l.Height <= 0 {
		return 0
	}
	return l.Width * l.Height
}

// Outranks 质量比较：高分辨率优先，其次像素面积
// 两者都相同时返回false，已有图片不会被同等质量的图片替换
func (l ImageLink) Outranks(other ImageLink) bool {
	if l.HighRes != other.HighRes {
		return l.HighRes
	}
	return l.Area() > other.Area()
}

// MergeImageLinks 按类型合并图片，返回合并结果和需要写入的变更
// 同类型只有在新图片质量更高时才替换，URL不变的重复数据被忽略
func MergeImageLinks(existing, incoming []ImageLink) (merged []ImageLink, changed []ImageLink) {
	byType := make(map[string]int, len(existing))
	merged = make([]ImageLink, 0, len(existing)+len(incoming))
	for _, l := range existing {
		byType[l.Type] = len(merged)
		merged = append(merged, l)
	}

	for _, l := range incoming {
		i, ok := byType[l.Type]
		if !ok {
			byType[l.Type] = len(merged)
			merged = append(merged, l)
			changed = append(changed, l)
			continue
		}
		if l.Outranks(merged[i]) {
			merged[i] = l
			changed = append(changed, l)
		}
	}
	return merged, changed
}

// CanonicalImage 从图片集合中选出规范封面
// 顺序：高分辨率 → 像素面积 → 类型等级（extraLarge最高）
func CanonicalImage(links []ImageLink) (ImageLink, bool) {
	var best ImageLink
	found := false
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		if !found || l.Outranks(best) ||
			(!best.Outranks(l) && imageTypeRank[l.Type] > imageTypeRank[best.Type]) {
			best = l
			found = true
		}
	}
	return best, found
}

// ImageURLMap 类型 → URL，用于事件负载
func ImageURLMap(links []ImageLink) map[string]string {
	m := make(map[string]string, len(links))
	for _, l := range links {
		if l.URL != "" {
			m[l.Type] = l.URL
		}
	}
	return m
}
