// creds-init 将交易所 API 凭证从 .env / 环境变量导入密钥库，
// 之后机器人可免环境变量启动
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/gogale/pkg/secretstore"
)

func main() {
	var (
		envPath = flag.String("env", ".env", ".env 文件路径（不存在则只读环境变量）")
		dbPath  = flag.String("store", getenv("GOGALE_SECRET_DB", "data/secrets"), "密钥库目录")
	)
	flag.Parse()

	if _, err := os.Stat(*envPath); err == nil {
		if err := godotenv.Load(*envPath); err != nil {
			fatal(fmt.Errorf("加载 %s 失败: %w", *envPath, err))
		}
	}

	creds := secretstore.Credentials{
		APIKey:    strings.TrimSpace(os.Getenv("BINANCE_API_KEY")),
		APISecret: strings.TrimSpace(os.Getenv("BINANCE_API_SECRET")),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		fatal(fmt.Errorf("缺少 BINANCE_API_KEY / BINANCE_API_SECRET"))
	}

	store, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	if err := store.SaveCredentials(creds); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "凭证已导入密钥库：%s\n", *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "错误:", err)
	os.Exit(1)
}
