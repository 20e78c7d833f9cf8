package extractor

import (
	"context"
	"fmt"

	"EchoFM/logger"
	"EchoFM/model"
)

// ExtractFunc 执行一次带配置的提取尝试。
type ExtractFunc func(ctx context.Context, opts Options) (*Info, error)

// Variants 返回针对 source 的配置尝试序列。
// 主平台的提取经常被反爬或登录校验拦下，去掉会话凭据有时反而能成功，
// 代价是拿不到有年龄/地区限制的内容；因此主平台多一组去凭据的降级配置。
// 副平台没有降级路径，失败即终止。
func Variants(source string, base Options) []Options {
	if source == model.SourceYouTube {
		return []Options{base, base.WithoutAuth()}
	}
	return []Options{base}
}

// RunWithFallback 依次用每组配置执行 fn，第一次成功立即返回。
// 非最后一组失败时记录日志并换下一组配置继续；全部失败时返回最后的错误。
func RunWithFallback(ctx context.Context, variants []Options, fn ExtractFunc) (*Info, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("没有可用的提取配置")
	}

	var lastErr error
	for i, opts := range variants {
		info, err := fn(ctx, opts)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if i+1 < len(variants) {
			logger.Warn("提取失败，使用降级配置重试",
				logger.Int("attempt", i+1),
				logger.ErrorField(err))
		}
	}
	return nil, lastErr
}
