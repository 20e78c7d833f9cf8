package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"EchoFM/logger"
	"EchoFM/model"
)

// FavoritesHandler 处理 /api/favorites 的增删查。
// 收藏按 source:id 作键，同一首歌重复收藏只保留一条。
func (h *APIHandler) FavoritesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string][]model.TrackMetadata{
			"favorites": h.listFavorites(ctx),
		})
		return
	}

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
	key := source + ":" + payload.ID

	switch r.Method {
	case http.MethodPost:
		meta := h.lookupMetadata(ctx, source, payload.ID)
		if err := h.stores.favorites.Put(ctx, key, meta); err != nil {
			logger.Error("写入收藏失败", logger.String("key", key), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "failed to save favorite")
			return
		}
	case http.MethodDelete:
		if err := h.stores.favorites.Delete(ctx, key); err != nil {
			logger.Error("删除收藏失败", logger.String("key", key), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "failed to delete favorite")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string][]model.TrackMetadata{
		"favorites": h.listFavorites(ctx),
	})
}

// lookupMetadata 为收藏项取元数据：先查缓存，缺失时现场解析，
// 解析也失败时退化为只含 id 的占位条目。
func (h *APIHandler) lookupMetadata(ctx context.Context, source, id string) model.TrackMetadata {
	key := source + ":" + id

	var meta model.TrackMetadata
	if ok, err := h.stores.metadata.Get(ctx, key, &meta); err == nil && ok {
		return meta
	}

	if rs, err := h.resolver.Resolve(ctx, source, id); err == nil {
		return rs.Metadata
	}
	return model.TrackMetadata{ID: id, Title: id, Source: source}
}

// listFavorites 返回全部收藏，按键排序保证输出稳定。
func (h *APIHandler) listFavorites(ctx context.Context) []model.TrackMetadata {
	doc, err := h.stores.favorites.All(ctx)
	if err != nil {
		logger.Error("读取收藏失败", logger.ErrorField(err))
		return []model.TrackMetadata{}
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	favorites := make([]model.TrackMetadata, 0, len(doc))
	for _, k := range keys {
		var meta model.TrackMetadata
		if err := json.Unmarshal(doc[k], &meta); err != nil {
			logger.Warn("收藏条目损坏，已跳过", logger.String("key", k), logger.ErrorField(err))
			continue
		}
		favorites = append(favorites, meta)
	}
	return favorites
}

type playlistRequest struct {
	Action string `json:"action"`
	Name   string `json:"name"`
	ID     string `json:"id"`
	Source string `json:"source"`
}

// PlaylistsHandler 处理 /api/playlists 的查询与 create/delete/add 操作。
func (h *APIHandler) PlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method == http.MethodGet {
		h.writePlaylists(ctx, w)
		return
	}

	var payload playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	switch payload.Action {
	case "create":
		name := payload.Name
		if name == "" {
			name = "New Playlist"
		}
		pl := model.Playlist{
			Name:      name,
			Tracks:    []model.PlaylistTrack{},
			CreatedAt: time.Now().UTC(),
		}
		if err := h.stores.playlists.Put(ctx, name, pl); err != nil {
			logger.Error("创建歌单失败", logger.String("name", name), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "failed to save playlist")
			return
		}

	case "delete":
		if err := h.stores.playlists.Delete(ctx, payload.Name); err != nil {
			logger.Error("删除歌单失败", logger.String("name", payload.Name), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "failed to delete playlist")
			return
		}

	case "add":
		var pl model.Playlist
		ok, err := h.stores.playlists.Get(ctx, payload.Name, &pl)
		if err != nil || !ok {
			writeError(w, http.StatusNotFound, "playlist not found")
			return
		}
		pl.Tracks = append(pl.Tracks, model.PlaylistTrack{
			ID:     payload.ID,
			Source: normalizeSource(payload.Source),
		})
		if err := h.stores.playlists.Put(ctx, payload.Name, pl); err != nil {
			logger.Error("更新歌单失败", logger.String("name", payload.Name), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "failed to save playlist")
			return
		}

	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	h.writePlaylists(ctx, w)
}

// writePlaylists 输出全部歌单。
func (h *APIHandler) writePlaylists(ctx context.Context, w http.ResponseWriter) {
	doc, err := h.stores.playlists.All(ctx)
	if err != nil {
		logger.Error("读取歌单失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load playlists")
		return
	}

	playlists := make(map[string]model.Playlist, len(doc))
	for name, raw := range doc {
		var pl model.Playlist
		if err := json.Unmarshal(raw, &pl); err != nil {
			logger.Warn("歌单条目损坏，已跳过", logger.String("name", name), logger.ErrorField(err))
			continue
		}
		playlists[name] = pl
	}
	writeJSON(w, http.StatusOK, map[string]map[string]model.Playlist{"playlists": playlists})
}
