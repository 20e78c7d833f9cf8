package model

import "time"

// PlaylistTrack 是歌单中的一项，仅记录 (id, source) 引用，
// 元数据在展示时再从元数据缓存中取。
type PlaylistTrack struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Playlist 是一个命名歌单。
type Playlist struct {
	Name      string          `json:"name"`
	Tracks    []PlaylistTrack `json:"tracks"`
	CreatedAt time.Time       `json:"created_at"`
}
