package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/collabocanvas/internal/auth"
	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/server"
	"github.com/Tyrowin/collabocanvas/internal/storage"
)

func main() {
	cfg := server.NewConfigFromEnv()
	log.Init(cfg.LogLevel)
	log.Info("starting collabocanvas server",
		"draw", cfg.DrawAddr, "chat", cfg.ChatAddr, "auth", cfg.AuthAddr, "http", cfg.HTTPAddr)

	if err := run(cfg); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg server.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFileStore(cfg.SaveDir)
	if err != nil {
		return err
	}

	credentials, err := auth.OpenFileStore(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	log.Info("credentials loaded", "file", cfg.CredentialsFile, "accounts", credentials.Len())

	notifier := server.NewNotifier(nil)
	defer func() { _ = notifier.Close() }()
	if err := server.LogNotifications(notifier); err != nil {
		return err
	}

	srv := server.New(cfg, server.WithServerStore(store), server.WithServerNotifier(notifier))
	ls, err := srv.Listen()
	if err != nil {
		return err
	}

	authLn, err := net.Listen("tcp", cfg.AuthAddr)
	if err != nil {
		ls.Close()
		return err
	}

	svc := auth.NewService(credentials)
	authDone := make(chan error, 1)
	go func() { authDone <- svc.Serve(ctx, authLn, cfg.ShutdownTimeout) }()

	serveErr := srv.Serve(ctx, ls)
	stop()
	authErr := <-authDone
	return errors.Join(serveErr, authErr)
}
