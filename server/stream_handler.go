package server

import (
	"io"
	"net"
	"net/http"
	"time"

	"EchoFM/core/extractor"
	"EchoFM/logger"

	"github.com/gorilla/mux"
)

const (
	// proxyChunkSize 是转发音频数据的分块大小
	proxyChunkSize = 16 * 1024
	// upstreamTimeout 限制上游连接建立与首字节时间
	upstreamTimeout = 15 * time.Second
)

// passthroughHeaders 是允许透传给客户端的上游响应头，其余一律丢弃。
var passthroughHeaders = []string{"Content-Type", "Content-Length", "Accept-Ranges", "Content-Range"}

// newUpstreamClient 创建用于拉取上游音频的客户端。
// 不能设置 Client.Timeout：它会限制整个响应体的读取时长，长音频会被中途截断，
// 所以超时只加在建连、TLS握手和等待响应头上。
func newUpstreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: upstreamTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   upstreamTimeout,
			ResponseHeaderTimeout: upstreamTimeout,
		},
	}
}

// StreamProxyHandler 处理 GET /stream/{source}/{id}。
// 每个请求都重新解析直链（直链随时过期），然后把上游的字节流
// 按块中继给客户端，并透传 Range 语义：上游返回 206 时客户端也收到 206。
func (h *APIHandler) StreamProxyHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source := normalizeSource(vars["source"])
	id := vars["id"]

	rs, err := h.resolver.Resolve(r.Context(), source, id)
	if err != nil {
		logger.Warn("流解析失败",
			logger.String("source", source),
			logger.String("id", id),
			logger.ErrorField(err))
		http.Error(w, "Not found or cannot extract audio", http.StatusNotFound)
		return
	}

	// 绑定请求上下文：客户端断开时上游请求一并取消，连接不会泄漏
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rs.URL, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		// 原样转发 Range，拖动进度条才能工作
		req.Header.Set("Range", rng)
	}
	req.Header.Set("User-Agent", extractor.DefaultUserAgent)

	upstream, err := h.upstream.Do(req)
	if err != nil {
		logger.Error("上游请求失败",
			logger.String("source", source),
			logger.String("id", id),
			logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer upstream.Body.Close()

	for _, name := range passthroughHeaders {
		if v := upstream.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "audio/mpeg")
	}

	// 上游状态码原样透传
	w.WriteHeader(upstream.StatusCode)

	h.relay(w, upstream.Body, source, id)
}

// relay 按固定分块把上游响应体转发给客户端。
// 客户端写失败（多半是断开）时立即停止；上游读错误记录后停止。
// 两种退出路径下上游连接都由调用方的 defer 关闭。
func (h *APIHandler) relay(w http.ResponseWriter, body io.Reader, source, id string) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, proxyChunkSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				logger.Info("客户端中断流传输",
					logger.String("source", source),
					logger.String("id", id),
					logger.ErrorField(writeErr))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				logger.Error("读取上游数据失败",
					logger.String("source", source),
					logger.String("id", id),
					logger.ErrorField(readErr))
			}
			return
		}
	}
}
