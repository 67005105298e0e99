package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"voicemail-bridge/internal/config"
	"voicemail-bridge/internal/handler"
	"voicemail-bridge/internal/security"
	callService "voicemail-bridge/internal/service/call"
	inboxService "voicemail-bridge/internal/service/inbox"
	"voicemail-bridge/internal/service/summarizer"
	"voicemail-bridge/internal/service/voice"
	"voicemail-bridge/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	var source inboxService.Source
	if telegram := inboxService.NewTelegramSource(cfg.Telegram); telegram != nil {
		source = telegram
	} else {
		log.Println("TELEGRAM_BOT_TOKEN not set, mailbox sync disabled")
	}
	inboxSvc := inboxService.NewService(source, st, cfg.Telegram.PollLimit)

	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing with deterministic fallback summaries only")
			chatModel = nil
		} else {
			log.Println("chat model initialized successfully")
		}
	} else {
		log.Println("ark credentials not configured, using deterministic fallback summaries")
	}

	summarizerSvc, err := summarizer.NewService(ctx, chatModel, cfg.AI.Timeout)
	if err != nil {
		log.Fatalf("failed to initialize summarizer: %v", err)
	}

	presenter := voice.NewPresenter(cfg.Twilio)
	validator := security.NewValidator(cfg.Twilio)
	callSvc := callService.NewService(st, inboxSvc, summarizerSvc, presenter, cfg.Call, cfg.Telegram.AllowedChatID)

	router := handler.NewRouter(st, inboxSvc, callSvc, validator, cfg)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voicemail bridge listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
