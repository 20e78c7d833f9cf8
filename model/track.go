package model

// 支持的平台。youtube 为主平台，支持降级重试；soundcloud 为副平台。
const (
	SourceYouTube    = "youtube"
	SourceSoundCloud = "soundcloud"
)

// TrackMetadata 描述一条音轨的元数据，由提取器产出并按 source:id 缓存。
type TrackMetadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration,omitempty"` // 时长（秒）
	Thumbnail  string  `json:"thumbnail,omitempty"`
	Uploader   string  `json:"uploader,omitempty"`
	WebpageURL string  `json:"webpage_url"`
	Source     string  `json:"source"`
}

// Key 返回 source:id 形式的存储键。同一个裸 id 可能同时存在于两个平台，
// 必须带平台前缀才不会互相覆盖。
func (m TrackMetadata) Key() string {
	return m.Source + ":" + m.ID
}

// ResolvedStream 绑定一次解析得到的直链与元数据。
// 直链由上游平台签发且随时过期，因此从不持久化，每次代理请求都重新解析。
type ResolvedStream struct {
	URL      string
	Metadata TrackMetadata
}
