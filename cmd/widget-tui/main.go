package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/supportbot/chatwidget-go/internal/client"
	"github.com/supportbot/chatwidget-go/internal/config"
	"github.com/supportbot/chatwidget-go/internal/directory"
	"github.com/supportbot/chatwidget-go/internal/service"
	"github.com/supportbot/chatwidget-go/internal/store"
	"github.com/supportbot/chatwidget-go/internal/tui"
	"github.com/supportbot/chatwidget-go/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/widget-tui.yaml", "配置文件路径")
	altScreen := flag.Bool("alt-screen", true, "使用终端备用屏幕")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 终端界面占用 stdout，日志写入文件
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(os.TempDir(), "widget-tui.log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		log.Fatalf("创建日志目录失败: %v", err)
	}
	zapLogger, err := logger.NewFileLogger(cfg.Log.Level, logFile)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history, err := store.New(ctx, cfg.Store, cfg.Redis, zapLogger)
	if err != nil {
		log.Fatalf("初始化历史记录存储失败: %v", err)
	}
	defer history.Close()

	embeds, errs := cfg.ValidEmbeds()
	for _, e := range errs {
		zapLogger.Warn("忽略无效的挂件声明", zap.Error(e))
	}

	backend := client.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, zapLogger)
	resolver := directory.NewResolver(backend, zapLogger)
	widgetService := service.NewWidgetService(resolver, backend, history, cfg.Widget, zapLogger)

	renderer := tui.NewRenderer()
	w, err := widgetService.Boot(ctx, embeds, renderer)
	if err != nil {
		log.Fatalf("挂件启动失败: %v", err)
	}

	opts := []tea.ProgramOption{}
	if *altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(tui.NewModel(ctx, w, renderer, zapLogger), opts...)
	_, runErr := p.Run()

	// 先释放等待中的确认，再把本次消息写入历史
	renderer.Shutdown()
	if err := w.Close(context.Background()); err != nil {
		zapLogger.Error("关闭挂件失败", zap.Error(err))
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "widget-tui: %v\n", runErr)
		os.Exit(1)
	}
}
