package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"EchoFM/config"
	"EchoFM/logger"
	"EchoFM/model"
)

// StreamResolver 是处理器依赖的解析能力。
type StreamResolver interface {
	Resolve(ctx context.Context, source, id string) (*model.ResolvedStream, error)
	Search(ctx context.Context, source, query string, max int) ([]model.TrackMetadata, error)
}

// APIHandler 处理所有API请求
type APIHandler struct {
	resolver StreamResolver
	stores   *Stores
	upstream *http.Client
	cfg      *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(resolver StreamResolver, stores *Stores, cfg *config.Config) *APIHandler {
	return &APIHandler{
		resolver: resolver,
		stores:   stores,
		upstream: newUpstreamClient(),
		cfg:      cfg,
	}
}

// writeJSON 输出JSON响应。
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}

// writeError 输出 {error: message} 形式的JSON错误响应。
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// normalizeSource 统一平台标识，未知或缺省时按主平台处理。
func normalizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return model.SourceYouTube
	}
	return source
}

type searchRequest struct {
	Query  string `json:"query"`
	Source string `json:"source"`
}

type searchResponse struct {
	Results []model.TrackMetadata `json:"results"`
	Cached  bool                  `json:"cached"`
}

// SearchHandler 处理 POST /api/search。
// 命中缓存时直接返回，完全不触发提取器。
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var payload searchRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "empty query")
		return
	}
	source := normalizeSource(payload.Source)

	ctx := r.Context()
	key := source + ":" + strings.ToLower(query)

	var cached []model.TrackMetadata
	if ok, err := h.stores.search.Get(ctx, key, &cached); err == nil && ok {
		writeJSON(w, http.StatusOK, searchResponse{Results: cached, Cached: true})
		return
	}

	results, err := h.resolver.Search(ctx, source, query, h.cfg.SearchLimit)
	if err != nil {
		// 失败不落缓存，下一次请求还有机会成功
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []model.TrackMetadata{}
	}

	if err := h.stores.search.Put(ctx, key, results); err != nil {
		logger.Warn("写入搜索缓存失败", logger.String("key", key), logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Cached: false})
}

type trackRequest struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// InfoHandler 处理 POST /api/info，返回目标的元数据。
func (h *APIHandler) InfoHandler(w http.ResponseWriter, r *http.Request) {
	var payload trackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if payload.ID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	source := normalizeSource(payload.Source)

	rs, err := h.resolver.Resolve(r.Context(), source, payload.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "couldn't extract")
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.TrackMetadata{"metadata": rs.Metadata})
}

// StreamURLHandler 处理 POST /api/stream。
// 直链会过期，所以这里从不返回上游URL，只返回本服务的代理路径，
// 客户端每次播放都经由代理重新解析。
func (h *APIHandler) StreamURLHandler(w http.ResponseWriter, r *http.Request) {
	var payload trackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	id := payload.ID
	if id == "" {
		id = extractTrackID(payload.URL)
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id or url")
		return
	}
	source := normalizeSource(payload.Source)

	writeJSON(w, http.StatusOK, map[string]string{
		"stream_url": fmt.Sprintf("/stream/%s/%s", source, id),
	})
}

// extractTrackID 从前端可能传来的 URL 中抽出平台 id。
// youtube 的观看链接取 v 参数，短链取最后一段路径；
// 其它 URL（soundcloud 或裸 id）原样返回。
func extractTrackID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "youtube.com") && !strings.Contains(rawURL, "youtu.be") {
		return rawURL
	}

	if u, err := url.Parse(rawURL); err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		return parts[len(parts)-1]
	}
	return rawURL
}
