package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"EchoFM/config"
	"EchoFM/core/extractor"
	"EchoFM/core/resolver"
	"EchoFM/store"

	"github.com/spf13/cobra"
)

var (
	searchKeyword string
	searchSource  string
	searchLimit   int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "音频解析命令行工具",
	Long:  `在终端里搜索歌曲并解析出可播放的直链，方便调试提取器与降级策略`,
	Run: func(cmd *cobra.Command, args []string) {
		if searchKeyword == "" {
			fmt.Println("请输入要搜索的关键词")
			os.Exit(1)
		}

		cfg := config.Load()
		metaStore, err := store.NewFileStore(filepath.Join(cfg.DataDir, "metadata_cache.json"))
		if err != nil {
			log.Fatalf("初始化元数据缓存失败: %v", err)
		}

		ex := extractor.NewClient(cfg.YTDLPPath)
		res := resolver.New(ex, extractor.DefaultOptions(cfg.CookieFile), metaStore)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		// 搜索歌曲
		fmt.Printf("正在搜索: %s\n", searchKeyword)
		results, err := res.Search(ctx, searchSource, searchKeyword, searchLimit)
		if err != nil {
			log.Fatalf("搜索失败: %v", err)
		}

		if len(results) == 0 {
			fmt.Println("未找到相关歌曲")
			return
		}

		// 显示搜索结果
		fmt.Printf("\n找到 %d 首歌曲:\n", len(results))
		for i, track := range results {
			fmt.Printf("%d. %s - %s (%.0fs)\n", i+1, track.Title, track.Uploader, track.Duration)
		}

		// 获取用户选择
		var choice int
		fmt.Print("\n请选择要解析直链的歌曲编号: ")
		fmt.Scan(&choice)

		if choice < 1 || choice > len(results) {
			fmt.Println("无效的选择")
			return
		}

		// 解析选中歌曲的直链
		selected := results[choice-1]
		rs, err := res.Resolve(ctx, selected.Source, selected.ID)
		if err != nil {
			log.Fatalf("解析直链失败: %v", err)
		}

		fmt.Printf("\n歌曲: %s\n", rs.Metadata.Title)
		fmt.Printf("上传者: %s\n", rs.Metadata.Uploader)
		fmt.Printf("页面: %s\n", rs.Metadata.WebpageURL)
		fmt.Printf("直链(会过期): %s\n", rs.URL)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	// 添加命令行参数
	resolveCmd.Flags().StringVarP(&searchKeyword, "keyword", "k", "", "要搜索的关键词")
	resolveCmd.Flags().StringVarP(&searchSource, "source", "s", "youtube", "平台: youtube 或 soundcloud")
	resolveCmd.Flags().IntVarP(&searchLimit, "limit", "l", 5, "返回结果数量")
}
