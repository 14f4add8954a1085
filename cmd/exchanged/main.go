// Command exchanged is the terminal-driven exchange process: it
// recovers live state from Postgres, starts the persistence buffer,
// and then serves request lines either from an interactive stdin
// session or from a script file, one request per line, each answered
// on stdout (some answers, such as show and history, span lines).
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/nkrasner/ledger-exchange/internal/accounts"
	"github.com/nkrasner/ledger-exchange/internal/adapter/cache"
	"github.com/nkrasner/ledger-exchange/internal/adapter/pg"
	"github.com/nkrasner/ledger-exchange/internal/config"
	"github.com/nkrasner/ledger-exchange/internal/engine"
	"github.com/nkrasner/ledger-exchange/internal/persistence"
	"github.com/nkrasner/ledger-exchange/internal/registry"
	"github.com/nkrasner/ledger-exchange/internal/request"
	"github.com/nkrasner/ledger-exchange/internal/simulate"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flags.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "exchanged: logger init:", err)
		return 2
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := pg.NewPgRepo(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connect to postgres", zap.Error(err))
		return 2
	}
	defer repo.Close(ctx)

	if err := repo.Bootstrap(ctx); err != nil {
		log.Error("apply schema", zap.Error(err))
		return 2
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, "", 0, 5*time.Minute)

	buf := persistence.New(repo.Pool(), log, persistence.Config{
		BatchMax:      cfg.BatchMax,
		BatchInterval: cfg.BatchInterval,
		MaxRetries:    cfg.MaxRetries,
	})
	defer buf.Close(context.Background())

	reg := registry.New()
	eng := engine.New(log, reg, buf, repo, redisCache)

	if err := eng.Recover(ctx); err != nil {
		log.Error("recover state", zap.Error(err))
		return 2
	}

	acctSvc := accounts.New(repo)
	svc := request.NewService(log, eng, acctSvc, repo)
	runner := simulate.New(eng, acctSvc)

	var in io.Reader = os.Stdin
	if cfg.Script != "" {
		f, err := os.Open(cfg.Script)
		if err != nil {
			log.Error("open script", zap.String("path", cfg.Script), zap.Error(err))
			return 1
		}
		defer f.Close()
		in = f
	}

	return serve(ctx, log, svc, runner, in, os.Stdout)
}

func serve(ctx context.Context, log *zap.Logger, svc *request.Service, runner *simulate.Runner, in io.Reader, out io.Writer) int {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		req, err := request.Parse(line)
		if err != nil {
			fmt.Fprintln(out, "ERROR:", err)
			continue
		}

		switch req.Kind {
		case request.KindExit:
			return 0
		case request.KindSimulate:
			report, err := runner.Run(ctx, simulate.Config{NUsers: req.NUsers, NMarkets: req.NMarkets, NOrders: req.NOrders})
			if err != nil {
				fmt.Fprintln(out, "ERROR:", err)
				continue
			}
			fmt.Fprintf(out, "simulated %d orders across %d users and %d markets\n", report.Orders, report.Users, len(report.Markets))
			continue
		}

		resp, err := svc.Handle(ctx, req)
		if err != nil {
			fmt.Fprintln(out, "ERROR:", err)
			continue
		}
		fmt.Fprintln(out, resp)
	}
	if err := scanner.Err(); err != nil {
		log.Error("read request stream", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
