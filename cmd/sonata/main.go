package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/solmari/sonata/internal/config"
	"github.com/solmari/sonata/internal/handlers"
	"github.com/solmari/sonata/internal/repository"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)
	bot := handlers.NewBot(cfg, repo)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
