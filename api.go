package tierstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/tierstore/genstore"
	"github.com/unkn0wn-root/tierstore/internal/keylock"
	"github.com/unkn0wn-root/tierstore/provider"
	"github.com/unkn0wn-root/tierstore/store"
)

// CostFunc weighs a cache entry. payload excludes the entry framing.
type CostFunc func(compositeKey string, payload []byte) int64

// Options wire a Storage from already-built collaborators.
// Store and Provider are required; others have sensible defaults.
type Options struct {
	// Required
	Store    store.Store
	Provider provider.Factory // called once with the coordinator's eviction listener

	Logger      Logger            // if nil, NopLogger is used
	Hooks       Hooks             // if nil, NopHooks is used
	GenStore    genstore.GenStore // nil => LocalGenStore without pruning
	ComputeCost CostFunc          // default len(compositeKey)+len(payload)

	// MaintenanceInterval > 0 runs RunMaintenance on a ticker until Close.
	MaintenanceInterval time.Duration
	// Stripes is the number of per-key lock stripes; 0 => 256.
	Stripes int
}

// New builds a Storage and starts its eviction reconciler.
// The Storage owns Store, the provider and GenStore from here on: Close
// closes all three.
func New(opts Options) (*Storage, error) {
	if opts.Store == nil {
		return nil, errors.New("tierstore: store is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("tierstore: provider factory is required")
	}

	s := &Storage{
		store:   opts.Store,
		locks:   keylock.New(coalesce(opts.Stripes, defaultStripes)),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
		trees:   make(map[string]store.Tree),
		pending: make(map[string]pendingDelete),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if opts.ComputeCost != nil {
		s.cost = opts.ComputeCost
	} else {
		s.cost = defaultCost
	}
	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		s.gen = genstore.NewLocalGenStore(0, 0)
	}

	p, err := opts.Provider(s.onEvict)
	if err != nil {
		_ = s.gen.Close(context.Background())
		return nil, fmt.Errorf("tierstore: build provider: %w", err)
	}
	if p == nil {
		_ = s.gen.Close(context.Background())
		return nil, errors.New("tierstore: provider factory returned nil")
	}
	s.provider = p

	go s.reconcileLoop()
	if opts.MaintenanceInterval > 0 {
		s.maintStop = make(chan struct{})
		s.maintDone = make(chan struct{})
		go s.maintenanceLoop(opts.MaintenanceInterval)
	}
	return s, nil
}
