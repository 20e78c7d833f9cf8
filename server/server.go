package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"EchoFM/config"
	"EchoFM/core/extractor"
	"EchoFM/core/resolver"
	"EchoFM/logger"
	"EchoFM/store"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})

	stores, cleanup, err := buildStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize document stores: %v", err)
	}
	defer cleanup()

	ex := extractor.NewClient(cfg.YTDLPPath)
	res := resolver.New(ex, extractor.DefaultOptions(cfg.CookieFile), stores.metadata)
	api := NewAPIHandler(res, stores, cfg)

	router := NewRouter(api, cfg)

	// 设置服务器超时。WriteTimeout 不设：代理长音频的响应不能被写超时切断。
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Search tracks via POST to /api/search")
		log.Println("Resolve stream URLs via POST to /api/stream")
		log.Println("Proxy audio via GET from /stream/{source}/{id}")
		log.Println("Manage favorites and playlists via /api/favorites and /api/playlists")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// NewRouter 注册全部路由与中间件。
func NewRouter(api *APIHandler, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware, loggingMiddleware)

	// API Endpoints
	router.HandleFunc("/api/search", api.SearchHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/info", api.InfoHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/stream", api.StreamURLHandler).Methods(http.MethodPost)

	// 音频代理端点。soundcloud 的 id 可能带路径分隔符，路由需放行斜杠
	router.HandleFunc("/stream/{source}/{id:.+}", api.StreamProxyHandler).Methods(http.MethodGet)

	// 收藏夹与歌单相关的API端点
	router.HandleFunc("/api/favorites", api.FavoritesHandler).
		Methods(http.MethodGet, http.MethodPost, http.MethodDelete)
	router.HandleFunc("/api/playlists", api.PlaylistsHandler).
		Methods(http.MethodGet, http.MethodPost)

	// Frontend UI serving
	uiFileServer := http.FileServer(http.Dir(cfg.StaticDir))
	router.PathPrefix("/").Handler(uiFileServer)

	return router
}

// Stores 汇总四个文档存储，按用途隔离写锁。
type Stores struct {
	search    store.Store
	metadata  store.Store
	favorites store.Store
	playlists store.Store
}

// buildStores 按配置选择存储后端，默认使用 DataDir 下的 JSON 文件。
func buildStores(cfg *config.Config) (*Stores, func(), error) {
	if cfg.StoreBackend == "redis" {
		client, err := store.ConnectRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Successfully connected to Redis")
		return &Stores{
			search:    store.NewRedisStore(client, "search_cache"),
			metadata:  store.NewRedisStore(client, "metadata_cache"),
			favorites: store.NewRedisStore(client, "favorites"),
			playlists: store.NewRedisStore(client, "playlists"),
		}, func() { client.Close() }, nil
	}

	names := []string{"search_cache.json", "metadata_cache.json", "favorites.json", "playlists.json"}
	built := make([]store.Store, len(names))
	for i, name := range names {
		s, err := store.NewFileStore(filepath.Join(cfg.DataDir, name))
		if err != nil {
			return nil, nil, err
		}
		built[i] = s
	}
	return &Stores{
		search:    built[0],
		metadata:  built[1],
		favorites: built[2],
		playlists: built[3],
	}, func() {}, nil
}
