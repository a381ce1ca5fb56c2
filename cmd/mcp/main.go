package main

import (
	"context"
	"fmt"
	"os"

	"backend/internal/agent"
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/logger"
	"backend/internal/mcp"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// stdio 模式的 MCP 服务端入口
// stdout 是协议通道，所有日志必须走 stderr；
// 数据库不可用时以纯文件模式运行，工具能力不中断
func main() {
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg, err := config.Load(env, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, "stderr"); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	local, err := agent.NewLocalStore(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("初始化本地存储失败", zap.Error(err))
	}
	if err := local.SeedDefaults(ctx); err != nil {
		logger.Fatal("写入内置模板文件失败", zap.Error(err))
	}

	// 数据库是可选依赖，连不上就只用本地文件
	var factory *agent.AgentFactory
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		logger.Warn("数据库不可用，以纯文件模式运行", zap.Error(err))
	} else {
		defer infra.CloseDatabase()
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(&agent.AgentDefinition{}, &agent.AgentTemplate{}, &agent.ExecutionRecord{}); err != nil {
				logger.Fatal("数据库迁移失败", zap.Error(err))
			}
		}
		templateStore := agent.NewTemplateStore(db)
		if err := templateStore.SeedDefaults(ctx); err != nil {
			logger.Fatal("写入内置模板失败", zap.Error(err))
		}
		factory = agent.NewAgentFactory(agent.NewAgentStore(db), templateStore, nil)
	}

	svc := agent.NewFallbackService(factory, local)
	server := mcp.NewServer(svc)

	logger.Info("MCP 服务端启动",
		zap.String("agents_dir", local.Dir()),
		zap.Bool("database", factory != nil),
	)

	if err := server.Run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Fatal("MCP 服务端异常退出", zap.Error(err))
	}
}
