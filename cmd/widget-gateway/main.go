package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/supportbot/chatwidget-go/internal/client"
	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/directory"
	"github.com/supportbot/chatwidget-go/internal/handler"
	"github.com/supportbot/chatwidget-go/internal/middleware"
	"github.com/supportbot/chatwidget-go/internal/service"
	"github.com/supportbot/chatwidget-go/internal/store"
	"github.com/supportbot/chatwidget-go/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := "configs/widget-gateway.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("widget-gateway 服务启动中...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化存储
	history, err := store.New(ctx, cfg.Store, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("初始化历史记录存储失败", zap.Error(err))
	}
	defer history.Close()

	// 配置文件中的挂件声明作为连接未带参数时的默认值
	embeds, errs := cfg.ValidEmbeds()
	for _, e := range errs {
		zapLogger.Warn("忽略无效的挂件声明", zap.Error(e))
	}

	// 初始化服务
	backend := client.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, zapLogger)
	resolver := directory.NewResolver(backend, zapLogger)
	sessionService := service.NewSessionService(zapLogger)
	defer sessionService.Stop()
	widgetService := service.NewWidgetService(resolver, backend, history, cfg.Widget, zapLogger)

	// 初始化处理器
	wsHandler := handler.NewWebSocketHandler(sessionService, widgetService, embeds, zapLogger)
	apiHandler := handler.NewAPIHandler(sessionService, resolver, cfg.Widget, zapLogger)

	// 初始化路由
	r := gin.Default()
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// WebSocket 端点，每个连接一个挂件实例
	r.GET("/ws", wsHandler.HandleWebSocket)

	// HTTP API
	r.GET("/api/widget/config", apiHandler.WidgetConfig)
	r.GET("/api/widget/departments", apiHandler.Departments)
	r.GET("/api/health", func(c *gin.Context) {
		c.Set("service_name", cfg.Server.Name)
		apiHandler.Health(c)
	})

	// 启动服务
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("服务启动失败", zap.Error(err))
		}
	}()
	zapLogger.Info("widget-gateway 服务启动成功",
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("store", cfg.Store.Driver))

	<-ctx.Done()
	zapLogger.Info("widget-gateway 服务关闭中...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("服务关闭失败", zap.Error(err))
	}

	// Shutdown 不处理已升级的 WebSocket 连接，需主动关闭并等待挂件写入历史后再关闭存储
	sessionService.CloseAll()
	if err := wsHandler.Wait(shutdownCtx); err != nil {
		zapLogger.Error("等待挂件连接关闭超时", zap.Error(err))
	}
	zapLogger.Info("widget-gateway 服务已关闭")
}
