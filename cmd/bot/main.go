package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/activitylog"
	"github.com/betbot/gogale/internal/controlplane/server"
	"github.com/betbot/gogale/internal/engine"
	"github.com/betbot/gogale/internal/exchange"
	"github.com/betbot/gogale/internal/feed"
	"github.com/betbot/gogale/internal/metrics"
	"github.com/betbot/gogale/internal/preflight"
	"github.com/betbot/gogale/pkg/config"
	"github.com/betbot/gogale/pkg/logger"
	"github.com/betbot/gogale/pkg/persistence"
	"github.com/betbot/gogale/pkg/sdk/api"
	ws "github.com/betbot/gogale/pkg/sdk/websocket"
	"github.com/betbot/gogale/pkg/secretstore"
	"github.com/betbot/gogale/pkg/shutdown"
)

const activityLogBuffer = 256

// loadCredentials 凭证加载优先级：环境变量 > 密钥库
// 环境变量提供时会回写密钥库，方便后续免环境变量启动
func loadCredentials(storePath string) (secretstore.Credentials, bool) {
	creds := secretstore.Credentials{
		APIKey:    os.Getenv("BINANCE_API_KEY"),
		APISecret: os.Getenv("BINANCE_API_SECRET"),
	}
	fromEnv := creds.APIKey != "" && creds.APISecret != ""

	store, err := secretstore.Open(secretstore.OpenOptions{Path: storePath})
	if err != nil {
		logrus.Warnf("⚠️ 打开密钥库失败: %v", err)
		return creds, fromEnv
	}
	defer store.Close()

	if fromEnv {
		if err := store.SaveCredentials(creds); err != nil {
			logrus.Warnf("⚠️ 凭证写入密钥库失败: %v", err)
		}
		return creds, true
	}

	stored, found, err := store.LoadCredentials()
	if err != nil {
		logrus.Warnf("⚠️ 读取密钥库凭证失败: %v", err)
		return creds, false
	}
	if found {
		return stored, true
	}
	return creds, false
}

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	dryRun := flag.Bool("dry-run", false, "纸交易模式（覆盖配置文件）")
	flag.Parse()

	// .env 可选
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logrus.Fatalf("创建数据目录失败: %v", err)
	}

	creds, haveCreds := loadCredentials(cfg.SecretStorePath())
	if !haveCreds && !cfg.DryRun {
		logrus.Fatalf("缺少 API 凭证：请设置 BINANCE_API_KEY / BINANCE_API_SECRET 或使用 -dry-run")
	}

	client := api.NewBinanceClientWithBaseURL(cfg.Binance.RESTBaseURL, creds.APIKey, creds.APISecret)
	adapter := exchange.New(client, cfg.DryRun, cfg.Martingale.CapitalTotal)

	// 活动日志（SQLite 落地，异步写入）
	var activity *activitylog.Logger
	var activityReader server.ActivityReader
	if sink, err := activitylog.NewSQLiteSink(cfg.ActivityLogPath()); err != nil {
		logrus.Warnf("⚠️ 活动日志初始化失败，将不记录活动: %v", err)
	} else {
		activity = activitylog.NewLogger(sink, activityLogBuffer)
		activityReader = sink
	}

	// 行情流 + 价格历史
	stream := ws.NewTickerClient(cfg.Martingale.Symbol, &ws.Config{Endpoint: cfg.Binance.WSEndpoint})
	priceFeed := feed.New(cfg.Martingale.Symbol, cfg.Martingale.HistoryCapacity, stream)

	validator := preflight.NewValidator(client, client, adapter,
		cfg.Martingale.Symbol, cfg.Binance.QuoteAsset, cfg.Martingale.InitialStake)

	eng, err := engine.New(engine.Options{
		Config:    cfg.Martingale,
		Feed:      priceFeed,
		Gateway:   adapter,
		Balance:   adapter,
		History:   adapter,
		Preflight: validator,
		Activity:  activity,
		Asset:     cfg.Binance.QuoteAsset,
	})
	if err != nil {
		logrus.Fatalf("创建引擎失败: %v", err)
	}

	// 控制面
	var cp *server.Server
	if cfg.Server.Enabled {
		cp = server.New(eng, activityReader)
		cp.Start(cfg.Server.Addr)
	}

	// 指标 / pprof（独立端口，随进程退出关闭）
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	if cfg.Server.MetricsAddr != "" {
		if _, err := metrics.StartDebugServer(appCtx, cfg.Server.MetricsAddr); err != nil {
			logrus.Warnf("⚠️ 指标服务启动失败: %v", err)
		}
	}

	if err := eng.Start(context.Background()); err != nil {
		logrus.Fatalf("启动引擎失败: %v", err)
	}

	// 会话统计归档（停机时落盘）
	archive := persistence.NewJSONFileService(cfg.ArchiveDir())
	sessionTag := time.Now().Format("20060102-150405")

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		eng.Stop()
		if stats := eng.GetStats(); stats != nil {
			store := archive.NewStore("stats", cfg.Martingale.Symbol, sessionTag)
			if err := store.Save(stats); err != nil {
				logrus.Warnf("⚠️ 会话统计归档失败: %v", err)
			}
		}
	})
	mgr.OnShutdown(func(ctx context.Context) {
		if cp != nil {
			_ = cp.Shutdown(ctx)
		}
	})
	mgr.OnShutdown(func(ctx context.Context) {
		if activity != nil {
			activity.Close()
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logrus.Infof("收到信号 %v，开始优雅关闭", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)
}
