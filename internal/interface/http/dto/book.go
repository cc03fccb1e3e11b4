package dto

// IngestBookRequest HTTP写入请求
// validator tag说明:
// - required: 必填字段
// - max: 长度上限
// - dive: 校验切片元素
type IngestBookRequest struct {
	Title         string           `json:"title" binding:"required,max=500" example:"Dune"`
	Subtitle      string           `json:"subtitle" binding:"max=500"`
	Authors       []string         `json:"authors" binding:"max=50,dive,max=255" example:"Frank Herbert"`
	Categories    []string         `json:"categories" binding:"max=50,dive,max=255" example:"Fiction"`
	Publisher     string           `json:"publisher" binding:"max=255" example:"Ace"`
	PublishedDate string           `json:"published_date" binding:"max=20" example:"2005-08-02"`
	Language      string           `json:"language" binding:"max=16" example:"en"`
	PageCount     int              `json:"page_count" binding:"min=0" example:"528"`
	Description   string           `json:"description" binding:"max=20000"`
	ISBN13        string           `json:"isbn13" binding:"max=32" example:"978-0-441-01359-3"`
	ISBN10        string           `json:"isbn10" binding:"max=32" example:"0441013597"`
	Source        string           `json:"source" binding:"max=32" example:"GOOGLE_BOOKS"`
	ExternalID    string           `json:"external_id" binding:"max=255" example:"B1yHPwAACAAJ"`
	ImageLinks    []ImageLinkInput `json:"image_links" binding:"max=10,dive"`
	Dimensions    *DimensionsInput `json:"dimensions"`
}

// ImageLinkInput 图片
type ImageLinkInput struct {
	Type     string `json:"type" binding:"required,oneof=smallThumbnail thumbnail small medium large extraLarge" example:"thumbnail"`
	URL      string `json:"url" binding:"required,url,max=1000" example:"https://books.google.com/books/content?id=B1yHPwAACAAJ"`
	Width    int    `json:"width" binding:"min=0"`
	Height   int    `json:"height" binding:"min=0"`
	HighRes  bool   `json:"high_res"`
	Provider string `json:"provider" binding:"max=32"`
}

// DimensionsInput 物理尺寸
type DimensionsInput struct {
	Height    string `json:"height" binding:"max=32" example:"24.00 cm"`
	Width     string `json:"width" binding:"max=32"`
	Thickness string `json:"thickness" binding:"max=32"`
}

// SearchBooksRequest 搜索参数
type SearchBooksRequest struct {
	Query string `form:"q" binding:"required,max=200" example:"dune"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=100" example:"20"`
}

// ScheduleBackfillRequest 手动回填
type ScheduleBackfillRequest struct {
	Source   string `json:"source" binding:"required,oneof=GOOGLE_BOOKS OPEN_LIBRARY google_books open_library" example:"GOOGLE_BOOKS"`
	SourceID string `json:"source_id" binding:"required,max=255" example:"isbn:9780441013593"`
	Priority int    `json:"priority" binding:"omitempty,min=1,max=9" example:"1"`
}

// SyncBestsellersRequest 榜单同步
type SyncBestsellersRequest struct {
	List string `json:"list" binding:"max=100" example:"hardcover-fiction"`
}

// IssueTokenRequest 签发服务令牌
type IssueTokenRequest struct {
	Service string   `json:"service" binding:"required,max=64" example:"nyt-crawler"`
	Scopes  []string `json:"scopes" binding:"required,min=1" example:"catalog:ingest"`
}

// RevokeTokenRequest 吊销服务令牌
type RevokeTokenRequest struct {
	TokenID string `json:"token_id" binding:"required,max=64"`
}
