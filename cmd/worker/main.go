package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cocdeshijie/MikaniroBytes/config"
	"github.com/cocdeshijie/MikaniroBytes/internal/app"
	"github.com/cocdeshijie/MikaniroBytes/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	// 本进程只消费队列, 不再向队列投递
	cfg.PreviewMode = config.PreviewModeOff
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	defer a.Close()

	log.Println("preview worker started")
	if err := worker.RunPreviewWorker(ctx, cfg, a.Runner); err != nil {
		log.Printf("preview worker stopped: %v", err)
	}
}
