package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/userbook/userbook/internal/config"
	"github.com/userbook/userbook/internal/infra"
	"github.com/userbook/userbook/internal/logging"
	"github.com/userbook/userbook/internal/user"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one usergen invocation and closes the store and log file
// before returning.
func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := pflag.NewFlagSet("usergen", pflag.ExitOnError)
	count := flags.IntP("count", "n", 10, "number of fake users to generate")
	save := flags.Bool("save", false, "validate and store the generated users")
	list := flags.Bool("list", false, "print the stored users instead of generating")
	drop := flags.Bool("drop", false, "remove every stored user first")
	seed := flags.Uint64("seed", cfg.FakeSeed, "fake data seed, 0 for random")
	_ = flags.Parse(args)

	logOut, err := logging.OpenFile(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logOut.Close()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logOut).With("batch_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := infra.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	mgr := user.NewManager(store, logger)

	if *drop {
		if err := store.DropAll(ctx); err != nil {
			logger.Error("drop store", "error", err)
			return fmt.Errorf("drop store: %w", err)
		}
		logger.Info("store dropped")
	}

	var users []user.User
	if *list {
		users, err = mgr.List(ctx)
		if err != nil {
			logger.Error("list users", "error", err)
			return fmt.Errorf("list users: %w", err)
		}
	} else {
		users = user.NewGenerator(*seed).Users(*count)
		if *save {
			if err := saveAll(ctx, mgr, users); err != nil {
				logger.Error("save users", "error", err)
				return fmt.Errorf("save users: %w", err)
			}
		}
	}

	for _, u := range users {
		fmt.Println("----------")
		fmt.Println(u)
	}
	return nil
}

// saveAll stores each user with validation. Rejected users are already
// logged by the manager and are skipped; store failures stop the run.
func saveAll(ctx context.Context, mgr *user.Manager, users []user.User) error {
	for _, u := range users {
		if _, err := mgr.Save(ctx, u, true); err != nil {
			if errors.Is(err, user.ErrInvalidValue) {
				continue
			}
			return err
		}
	}
	return nil
}
