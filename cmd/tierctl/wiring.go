package main

import (
	"context"
	"flag"
	"fmt"
	stdslog "log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tierstore"
	asynchook "github.com/unkn0wn-root/tierstore/hooks/async"
	tlogrus "github.com/unkn0wn-root/tierstore/log/logrus"
	tslog "github.com/unkn0wn-root/tierstore/log/slog"
	tzap "github.com/unkn0wn-root/tierstore/log/zap"
	"github.com/unkn0wn-root/tierstore/provider"
	pbig "github.com/unkn0wn-root/tierstore/provider/bigcache"
	"github.com/unkn0wn-root/tierstore/provider/memory"
	pris "github.com/unkn0wn-root/tierstore/provider/ristretto"
	"github.com/unkn0wn-root/tierstore/sloghooks"
	"github.com/unkn0wn-root/tierstore/store"
	sredis "github.com/unkn0wn-root/tierstore/store/redis"
	"github.com/unkn0wn-root/tierstore/store/sqlite"
)

type options struct {
	backend   string
	db        string
	redisAddr string
	prefix    string
	cache     string
	logger    string
	ns        string
	timeout   time.Duration

	closers []func()
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.backend, "backend", "sqlite", "durable store: sqlite or redis")
	fs.StringVar(&o.db, "db", "", "SQLite path (default from TIERSTORE_DB_PATH)")
	fs.StringVar(&o.redisAddr, "redis", "localhost:6379", "Redis address")
	fs.StringVar(&o.prefix, "prefix", "tierstore", "Redis key prefix")
	fs.StringVar(&o.cache, "cache", "memory", "cache tier: memory, ristretto or bigcache")
	fs.StringVar(&o.logger, "log", "none", "logger: zap, logrus, slog or none")
	fs.StringVar(&o.ns, "ns", "", "namespace (empty = root)")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "overall deadline")
}

// open builds a Storage from flags layered over TIERSTORE_* settings.
func (o *options) open(ctx context.Context) (*tierstore.Storage, error) {
	cfg, err := tierstore.LoadConfig()
	if err != nil {
		return nil, err
	}
	if o.db != "" {
		cfg.DBPath = o.db
	}

	st, err := o.store(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := o.provider(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger, err := o.newLogger()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		_ = st.Close()
		return nil, err
	}

	var hooks tierstore.Hooks = tierstore.NopHooks{}
	if o.logger == "slog" {
		async := asynchook.New(sloghooks.New(stdslog.Default(), sloghooks.Options{SelfHealEvery: 10}), 1, 256)
		o.closers = append(o.closers, async.Close)
		hooks = async
	}

	s, err := tierstore.New(tierstore.Options{
		Store:    st,
		Provider: factory,
		Logger:   logger,
		Hooks:    hooks,
	})
	if err != nil {
		_ = st.Close()
		o.close()
		return nil, err
	}
	return s, nil
}

// close releases what open created besides the Storage itself.
func (o *options) close() {
	for _, fn := range o.closers {
		fn()
	}
	o.closers = nil
}

func (o *options) store(cfg tierstore.Config) (store.Store, error) {
	switch o.backend {
	case "sqlite":
		return sqlite.Open(cfg.DBPath)
	case "redis":
		return sredis.New(sredis.Config{
			Client:      redis.NewClient(&redis.Options{Addr: o.redisAddr}),
			Prefix:      o.prefix,
			CloseClient: true,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", o.backend)
	}
}

func (o *options) provider(cfg tierstore.Config) (provider.Factory, error) {
	mc := cfg.MemoryConfig()
	switch o.cache {
	case "memory":
		return memory.Factory(mc), nil
	case "ristretto":
		return pris.Factory(pris.Config{MaxCost: mc.MaxCost, TimeToLive: mc.TimeToLive, TimeToIdle: mc.TimeToIdle}), nil
	case "bigcache":
		if mc.TimeToIdle > 0 {
			return nil, fmt.Errorf("bigcache does not support a time-to-idle")
		}
		return pbig.Factory(pbig.Config{TimeToLive: mc.TimeToLive}), nil
	default:
		return nil, fmt.Errorf("unknown cache %q", o.cache)
	}
}

func (o *options) newLogger() (tierstore.Logger, error) {
	switch o.logger {
	case "none", "":
		return tierstore.NopLogger{}, nil
	case "zap":
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return tzap.New(l), nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.DebugLevel)
		return tlogrus.New(l), nil
	case "slog":
		return tslog.New(stdslog.New(stdslog.NewTextHandler(os.Stderr, nil))), nil
	default:
		return nil, fmt.Errorf("unknown logger %q", o.logger)
	}
}
