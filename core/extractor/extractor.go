package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"EchoFM/model"
)

// DefaultUserAgent 是提取器与代理共用的浏览器标识。
// 两边必须保持一致，平台可能会拒绝默认客户端标识。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options 控制一次 yt-dlp 调用的行为。
type Options struct {
	Format             string // 格式选择表达式，如 bestaudio/best
	CookieFile         string // 会话凭据文件，降级重试时会被清空
	UserAgent          string
	ExtractorRetries   int // yt-dlp 内部的提取重试次数，独立于外层的降级重试
	NoCheckCertificate bool
}

// DefaultOptions 返回与浏览器一致、只取元数据不下载的默认配置。
func DefaultOptions(cookieFile string) Options {
	return Options{
		Format:             "bestaudio/best",
		CookieFile:         cookieFile,
		UserAgent:          DefaultUserAgent,
		ExtractorRetries:   3,
		NoCheckCertificate: true,
	}
}

// WithoutAuth 返回去掉会话凭据后的配置副本，其余参数不变。
func (o Options) WithoutAuth() Options {
	o.CookieFile = ""
	return o
}

// args 生成 yt-dlp 的命令行参数。
func (o Options) args(target string) []string {
	args := []string{"--dump-single-json", "--no-download", "--quiet", "--no-warnings", "--ignore-config"}
	if o.NoCheckCertificate {
		args = append(args, "--no-check-certificates")
	}
	if o.ExtractorRetries > 0 {
		retries := strconv.Itoa(o.ExtractorRetries)
		args = append(args, "--retries", retries, "--extractor-retries", retries)
	}
	if o.Format != "" {
		args = append(args, "--format", o.Format)
	}
	if o.UserAgent != "" {
		args = append(args, "--user-agent", o.UserAgent)
	}
	args = append(args,
		"--add-headers", "Accept:*/*",
		"--add-headers", "Accept-Language:en-US,en;q=0.9",
		"--add-headers", "Sec-Fetch-Mode:navigate",
	)
	if o.CookieFile != "" {
		args = append(args, "--cookies", o.CookieFile)
	}
	return append(args, target)
}

// Format 是提取结果中的一个候选流。
type Format struct {
	FormatID string  `json:"format_id"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	ABR      float64 `json:"abr"`
	TBR      float64 `json:"tbr"`
	URL      string  `json:"url"`
}

// HasAudio 判断候选流是否带音频编码。
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// VideoFree 判断候选流是否不含视频编码。
func (f Format) VideoFree() bool {
	return f.VCodec == "" || f.VCodec == "none"
}

// Bitrate 返回用于排序的码率：优先音频码率，其次总码率，缺省为 0。
func (f Format) Bitrate() float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	if f.TBR > 0 {
		return f.TBR
	}
	return 0
}

// Info 是 yt-dlp --dump-single-json 的解码结果。
// 单曲提取时 URL 或 Formats 至少有一个可用；搜索结果通过 Entries 返回。
type Info struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   float64  `json:"duration"`
	Thumbnail  string   `json:"thumbnail"`
	Uploader   string   `json:"uploader"`
	WebpageURL string   `json:"webpage_url"`
	URL        string   `json:"url"`
	Formats    []Format `json:"formats"`
	Entries    []Info   `json:"entries"`
}

// SearchTarget 构造平台搜索目标。
func SearchTarget(source, query string, max int) string {
	if source == model.SourceSoundCloud {
		return fmt.Sprintf("scsearch%d:%s", max, query)
	}
	return fmt.Sprintf("ytsearch%d:%s", max, query)
}

// Client 通过 yt-dlp 可执行文件完成提取，自身不实现任何平台抓取逻辑。
type Client struct {
	binPath string
}

// NewClient 创建提取客户端，binPath 为空时使用 PATH 中的 yt-dlp。
func NewClient(binPath string) *Client {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Client{binPath: binPath}
}

// Extract 对目标执行一次提取并解码结果。
// 超时与取消通过 ctx 控制，错误中附带 yt-dlp 标准错误输出的末尾。
func (c *Client) Extract(ctx context.Context, target string, opts Options) (*Info, error) {
	cmd := exec.CommandContext(ctx, c.binPath, opts.args(target)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp 执行失败 (目标: %s): %w: %s", target, err, stderrTail(stderr.String()))
	}

	var info Info
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("解析提取结果失败 (目标: %s): %w", target, err)
	}
	return &info, nil
}

// stderrTail 压缩标准错误输出，只保留末尾部分用于错误信息。
func stderrTail(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	const max = 200
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}
