package cmd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"EchoFM/config"
	"EchoFM/store"

	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "存储后端连通性测试",
	Long:  `按当前配置初始化文档存储，并做一次读写回环检查。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("存储后端: %s\n", cfg.StoreBackend)

		var s store.Store
		switch cfg.StoreBackend {
		case "redis":
			fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
			client, err := store.ConnectRedis(cfg)
			if err != nil {
				log.Fatalf("无法连接到Redis: %v", err)
			}
			defer client.Close()
			fmt.Println("Redis连接成功！")
			s = store.NewRedisStore(client, "selftest")
		default:
			fs, err := store.NewFileStore(filepath.Join(cfg.DataDir, "selftest.json"))
			if err != nil {
				log.Fatalf("初始化文件存储失败: %v", err)
			}
			s = fs
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println("开始读写回环检查...")
		if err := s.Put(ctx, "ping", "pong"); err != nil {
			log.Fatalf("写入失败: %v", err)
		}
		var got string
		ok, err := s.Get(ctx, "ping", &got)
		if err != nil || !ok || got != "pong" {
			log.Fatalf("读取失败: ok=%v got=%q err=%v", ok, got, err)
		}
		if err := s.Delete(ctx, "ping"); err != nil {
			log.Fatalf("删除失败: %v", err)
		}
		fmt.Println("存储读写回环检查成功！")
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
