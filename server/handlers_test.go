package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"EchoFM/config"
	"EchoFM/core/resolver"
	"EchoFM/model"
	"EchoFM/store"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeResolver 按预设结果应答，并统计调用次数。
type fakeResolver struct {
	mu           sync.Mutex
	searchCalls  int
	resolveCalls int
	results      []model.TrackMetadata
	stream       *model.ResolvedStream
	searchErr    error
	resolveErr   error
}

func (f *fakeResolver) Resolve(ctx context.Context, source, id string) (*model.ResolvedStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.stream, nil
}

func (f *fakeResolver) Search(ctx context.Context, source, query string, max int) ([]model.TrackMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

// newTestStores 在临时目录里建一整套文件存储。
func newTestStores(t *testing.T) *Stores {
	t.Helper()
	dir := t.TempDir()
	names := []string{"search_cache.json", "metadata_cache.json", "favorites.json", "playlists.json"}
	built := make([]store.Store, len(names))
	for i, name := range names {
		s, err := store.NewFileStore(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		built[i] = s
	}
	return &Stores{search: built[0], metadata: built[1], favorites: built[2], playlists: built[3]}
}

func newTestServer(t *testing.T, res StreamResolver) (*httptest.Server, *APIHandler) {
	t.Helper()
	cfg := &config.Config{SearchLimit: 10, StaticDir: t.TempDir()}
	api := NewAPIHandler(res, newTestStores(t), cfg)
	ts := httptest.NewServer(NewRouter(api, cfg))
	t.Cleanup(ts.Close)
	return ts, api
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestSearchHandler(t *testing.T) {
	Convey("Given a search endpoint", t, func() {
		res := &fakeResolver{results: []model.TrackMetadata{
			{ID: "a", Title: "A", Source: "youtube"},
			{ID: "b", Title: "B", Source: "youtube"},
			{ID: "c", Title: "C", Source: "youtube"},
		}}
		ts, _ := newTestServer(t, res)

		Convey("A blank query is rejected before any extraction", func() {
			resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "   ", "source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			var body map[string]string
			decodeBody(t, resp, &body)
			So(body["error"], ShouldEqual, "empty query")
			So(res.searchCalls, ShouldEqual, 0)
		})

		Convey("A fresh query hits the extractor and is cached", func() {
			resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "lofi beats", "source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var first struct {
				Results []model.TrackMetadata `json:"results"`
				Cached  bool                  `json:"cached"`
			}
			decodeBody(t, resp, &first)
			So(len(first.Results), ShouldEqual, 3)
			So(first.Cached, ShouldBeFalse)
			So(res.searchCalls, ShouldEqual, 1)

			Convey("An identical repeat short-circuits the extractor", func() {
				resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "lofi beats", "source": "youtube"})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)

				var second struct {
					Results []model.TrackMetadata `json:"results"`
					Cached  bool                  `json:"cached"`
				}
				decodeBody(t, resp, &second)
				So(second.Cached, ShouldBeTrue)
				So(second.Results, ShouldResemble, first.Results)
				So(res.searchCalls, ShouldEqual, 1)
			})

			Convey("The cache key is case-insensitive on the query", func() {
				resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "LoFi BEATS", "source": "youtube"})
				var second struct {
					Cached bool `json:"cached"`
				}
				decodeBody(t, resp, &second)
				So(second.Cached, ShouldBeTrue)
				So(res.searchCalls, ShouldEqual, 1)
			})

			Convey("The same query on another platform misses the cache", func() {
				resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "lofi beats", "source": "soundcloud"})
				var second struct {
					Cached bool `json:"cached"`
				}
				decodeBody(t, resp, &second)
				So(second.Cached, ShouldBeFalse)
				So(res.searchCalls, ShouldEqual, 2)
			})
		})
	})

	Convey("A failing search returns 500 and caches nothing", t, func() {
		res := &fakeResolver{searchErr: context.DeadlineExceeded}
		ts, api := newTestServer(t, res)

		resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "q", "source": "youtube"})
		So(resp.StatusCode, ShouldEqual, http.StatusInternalServerError)
		resp.Body.Close()

		all, err := api.stores.search.All(context.Background())
		So(err, ShouldBeNil)
		So(len(all), ShouldEqual, 0)
	})
}

func TestInfoHandler(t *testing.T) {
	Convey("Given an info endpoint", t, func() {
		meta := model.TrackMetadata{ID: "abc", Title: "Song", Source: "youtube"}

		Convey("A resolvable id returns its metadata", func() {
			res := &fakeResolver{stream: &model.ResolvedStream{URL: "http://cdn/x", Metadata: meta}}
			ts, _ := newTestServer(t, res)

			resp := postJSON(t, ts.URL+"/api/info", map[string]string{"id": "abc", "source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var body struct {
				Metadata model.TrackMetadata `json:"metadata"`
			}
			decodeBody(t, resp, &body)
			So(body.Metadata.Title, ShouldEqual, "Song")
		})

		Convey("A missing id is a bad request", func() {
			ts, _ := newTestServer(t, &fakeResolver{})
			resp := postJSON(t, ts.URL+"/api/info", map[string]string{"source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})

		Convey("An unresolvable id is not found", func() {
			res := &fakeResolver{resolveErr: resolver.ErrNotFound}
			ts, _ := newTestServer(t, res)
			resp := postJSON(t, ts.URL+"/api/info", map[string]string{"id": "ghost", "source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			resp.Body.Close()
		})
	})
}

func TestStreamURLHandler(t *testing.T) {
	Convey("Given the stream-url endpoint", t, func() {
		ts, _ := newTestServer(t, &fakeResolver{})

		streamURL := func(payload map[string]string) (int, string) {
			resp := postJSON(t, ts.URL+"/api/stream", payload)
			var body map[string]string
			status := resp.StatusCode
			decodeBody(t, resp, &body)
			return status, body["stream_url"]
		}

		Convey("A bare id maps straight to the proxy path", func() {
			status, url := streamURL(map[string]string{"id": "abc", "source": "youtube"})
			So(status, ShouldEqual, http.StatusOK)
			So(url, ShouldEqual, "/stream/youtube/abc")
		})

		Convey("A watch URL yields the v parameter", func() {
			status, url := streamURL(map[string]string{
				"url":    "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42",
				"source": "youtube",
			})
			So(status, ShouldEqual, http.StatusOK)
			So(url, ShouldEqual, "/stream/youtube/dQw4w9WgXcQ")
		})

		Convey("A short link yields the last path segment", func() {
			status, url := streamURL(map[string]string{
				"url":    "https://youtu.be/dQw4w9WgXcQ?si=xyz",
				"source": "youtube",
			})
			So(status, ShouldEqual, http.StatusOK)
			So(url, ShouldEqual, "/stream/youtube/dQw4w9WgXcQ")
		})

		Convey("A soundcloud URL passes through as the id", func() {
			status, url := streamURL(map[string]string{
				"url":    "https://soundcloud.com/artist/track",
				"source": "soundcloud",
			})
			So(status, ShouldEqual, http.StatusOK)
			So(url, ShouldEqual, "/stream/soundcloud/https://soundcloud.com/artist/track")
		})

		Convey("The proxy path never exposes an upstream media URL", func() {
			_, url := streamURL(map[string]string{"id": "abc", "source": "youtube"})
			So(url, ShouldStartWith, "/stream/")
		})

		Convey("Missing id and url is a bad request", func() {
			resp := postJSON(t, ts.URL+"/api/stream", map[string]string{"source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})
	})
}

func TestFavoritesHandler(t *testing.T) {
	Convey("Given the favorites endpoint", t, func() {
		meta := model.TrackMetadata{ID: "abc", Title: "Song", Source: "youtube"}
		res := &fakeResolver{stream: &model.ResolvedStream{URL: "http://cdn/x", Metadata: meta}}
		ts, _ := newTestServer(t, res)

		listFavorites := func() []model.TrackMetadata {
			resp, err := http.Get(ts.URL + "/api/favorites")
			So(err, ShouldBeNil)
			var body struct {
				Favorites []model.TrackMetadata `json:"favorites"`
			}
			decodeBody(t, resp, &body)
			return body.Favorites
		}

		Convey("Initially empty", func() {
			So(len(listFavorites()), ShouldEqual, 0)
		})

		Convey("Adding the same track twice keeps one entry", func() {
			for i := 0; i < 2; i++ {
				resp := postJSON(t, ts.URL+"/api/favorites", map[string]string{"id": "abc", "source": "youtube"})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				resp.Body.Close()
			}
			favorites := listFavorites()
			So(len(favorites), ShouldEqual, 1)
			So(favorites[0].Title, ShouldEqual, "Song")

			Convey("The same id on another platform is a distinct favorite", func() {
				resp := postJSON(t, ts.URL+"/api/favorites", map[string]string{"id": "abc", "source": "soundcloud"})
				resp.Body.Close()
				So(len(listFavorites()), ShouldEqual, 2)
			})

			Convey("Deleting removes exactly the matching entry", func() {
				req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/favorites",
					bytes.NewReader([]byte(`{"id":"abc","source":"youtube"}`)))
				So(err, ShouldBeNil)
				resp, err := http.DefaultClient.Do(req)
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				resp.Body.Close()
				So(len(listFavorites()), ShouldEqual, 0)
			})
		})

		Convey("An unresolvable favorite degrades to a stub entry", func() {
			res.resolveErr = resolver.ErrNotFound
			resp := postJSON(t, ts.URL+"/api/favorites", map[string]string{"id": "ghost", "source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			resp.Body.Close()

			favorites := listFavorites()
			So(len(favorites), ShouldEqual, 1)
			So(favorites[0].ID, ShouldEqual, "ghost")
			So(favorites[0].Title, ShouldEqual, "ghost")
		})

		Convey("A missing id is a bad request", func() {
			resp := postJSON(t, ts.URL+"/api/favorites", map[string]string{"source": "youtube"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})
	})
}

func TestPlaylistsHandler(t *testing.T) {
	Convey("Given the playlists endpoint", t, func() {
		ts, _ := newTestServer(t, &fakeResolver{})

		getPlaylists := func() map[string]model.Playlist {
			resp, err := http.Get(ts.URL + "/api/playlists")
			So(err, ShouldBeNil)
			var body struct {
				Playlists map[string]model.Playlist `json:"playlists"`
			}
			decodeBody(t, resp, &body)
			return body.Playlists
		}

		Convey("Create registers an empty playlist", func() {
			resp := postJSON(t, ts.URL+"/api/playlists", map[string]string{"action": "create", "name": "Chill"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			resp.Body.Close()

			playlists := getPlaylists()
			So(len(playlists), ShouldEqual, 1)
			So(playlists["Chill"].Name, ShouldEqual, "Chill")
			So(len(playlists["Chill"].Tracks), ShouldEqual, 0)
			So(playlists["Chill"].CreatedAt.IsZero(), ShouldBeFalse)

			Convey("Add appends a track reference", func() {
				resp := postJSON(t, ts.URL+"/api/playlists", map[string]string{
					"action": "add", "name": "Chill", "id": "abc", "source": "youtube",
				})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				resp.Body.Close()

				playlists := getPlaylists()
				So(len(playlists["Chill"].Tracks), ShouldEqual, 1)
				So(playlists["Chill"].Tracks[0].ID, ShouldEqual, "abc")
			})

			Convey("Delete removes the playlist", func() {
				resp := postJSON(t, ts.URL+"/api/playlists", map[string]string{"action": "delete", "name": "Chill"})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				resp.Body.Close()
				So(len(getPlaylists()), ShouldEqual, 0)
			})
		})

		Convey("Adding to a missing playlist is not found", func() {
			resp := postJSON(t, ts.URL+"/api/playlists", map[string]string{
				"action": "add", "name": "Ghost", "id": "abc",
			})
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			resp.Body.Close()
		})

		Convey("An unknown action is a bad request", func() {
			resp := postJSON(t, ts.URL+"/api/playlists", map[string]string{"action": "rename"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp.Body.Close()
		})
	})
}
