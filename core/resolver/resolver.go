package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"EchoFM/core/extractor"
	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/store"
)

// ErrNotFound 表示目标无法解析出可播放的音频流。
var ErrNotFound = errors.New("未找到可播放的音频流")

// Extractor 是解析器依赖的提取能力。
type Extractor interface {
	Extract(ctx context.Context, target string, opts extractor.Options) (*extractor.Info, error)
}

// Resolver 把 (source, id) 解析为可播放的直链与元数据。
type Resolver struct {
	ex        Extractor
	baseOpts  extractor.Options
	metaStore store.Store
}

// New 创建解析器。metaStore 用于缓存解析成功的元数据。
func New(ex Extractor, baseOpts extractor.Options, metaStore store.Store) *Resolver {
	return &Resolver{
		ex:        ex,
		baseOpts:  baseOpts,
		metaStore: metaStore,
	}
}

// NormalizeTarget 把裸 id 规范化为提取器可识别的目标，URL 原样透传。
func NormalizeTarget(source, id string) string {
	if strings.HasPrefix(id, "http") {
		return id
	}
	if source == model.SourceSoundCloud {
		return "https://soundcloud.com/" + id
	}
	return "https://www.youtube.com/watch?v=" + id
}

// extract 执行一次带降级重试策略的提取。
func (r *Resolver) extract(ctx context.Context, source, target string) (*extractor.Info, error) {
	variants := extractor.Variants(source, r.baseOpts)
	return extractor.RunWithFallback(ctx, variants, func(ctx context.Context, opts extractor.Options) (*extractor.Info, error) {
		return r.ex.Extract(ctx, target, opts)
	})
}

// Resolve 解析出直链与元数据，成功时把元数据写入缓存。
// 直链由上游签发且会过期，调用方不得缓存直链本身。
func (r *Resolver) Resolve(ctx context.Context, source, id string) (*model.ResolvedStream, error) {
	target := NormalizeTarget(source, id)

	info, err := r.extract(ctx, source, target)
	if err != nil {
		logger.Warn("提取失败",
			logger.String("source", source),
			logger.String("id", id),
			logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	streamURL := info.URL
	if streamURL == "" {
		streamURL = SelectAudioURL(info.Formats)
	}
	if streamURL == "" {
		logger.Warn("没有合格的纯音频候选",
			logger.String("source", source),
			logger.String("id", id))
		return nil, ErrNotFound
	}

	meta := metadataFromInfo(info, source)
	if err := r.metaStore.Put(ctx, meta.Key(), meta); err != nil {
		// 缓存写失败不影响本次解析
		logger.Warn("写入元数据缓存失败",
			logger.String("key", meta.Key()),
			logger.ErrorField(err))
	}

	return &model.ResolvedStream{URL: streamURL, Metadata: meta}, nil
}

// Search 执行平台搜索并返回元数据列表。
func (r *Resolver) Search(ctx context.Context, source, query string, max int) ([]model.TrackMetadata, error) {
	target := extractor.SearchTarget(source, query, max)

	info, err := r.extract(ctx, source, target)
	if err != nil {
		logger.Warn("搜索失败",
			logger.String("source", source),
			logger.String("query", query),
			logger.ErrorField(err))
		return nil, fmt.Errorf("搜索失败: %w", err)
	}

	results := make([]model.TrackMetadata, 0, len(info.Entries))
	for i := range info.Entries {
		results = append(results, metadataFromInfo(&info.Entries[i], source))
	}
	return results, nil
}

// SelectAudioURL 在候选格式中选出纯音频且码率最高的一个。
// 带视频编码或缺音频编码的候选一律不选；码率相同时保留靠前的候选；
// 没有合格候选时返回空串。
func SelectAudioURL(formats []extractor.Format) string {
	var best *extractor.Format
	for i := range formats {
		f := &formats[i]
		if !f.HasAudio() || !f.VideoFree() {
			continue
		}
		if best == nil || f.Bitrate() > best.Bitrate() {
			best = f
		}
	}
	if best == nil {
		return ""
	}
	return best.URL
}

// metadataFromInfo 把提取结果转换为统一的元数据并打上平台标记。
func metadataFromInfo(info *extractor.Info, source string) model.TrackMetadata {
	return model.TrackMetadata{
		ID:         info.ID,
		Title:      info.Title,
		Duration:   info.Duration,
		Thumbnail:  info.Thumbnail,
		Uploader:   info.Uploader,
		WebpageURL: info.WebpageURL,
		Source:     source,
	}
}
