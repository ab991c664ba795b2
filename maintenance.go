package tierstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunMaintenance sweeps expired cache entries, applies every eviction delete
// they produced, and flushes the store. Callers that skip it only delay
// expiry bookkeeping and durability; both tiers re-check lazily on access.
func (s *Storage) RunMaintenance(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var errs []error
	if err := s.provider.Sweep(ctx); err != nil {
		errs = append(errs, fmt.Errorf("provider sweep: %w", err))
	}
	s.drain(ctx)
	if err := s.store.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store flush: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Storage) maintenanceLoop(every time.Duration) {
	defer close(s.maintDone)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.RunMaintenance(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
				s.log.Warn("maintenance failed", Fields{"err": err})
			}
		case <-s.maintStop:
			return
		}
	}
}

// Close stops background work, applies outstanding eviction deletes and
// closes the provider, the generation store and the store, in that order.
// Subsequent calls return the first call's result.
func (s *Storage) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.maintStop != nil {
			close(s.maintStop)
			<-s.maintDone
		}
		close(s.stop)
		<-s.done
		s.closed.Store(true)

		var errs []error
		if err := s.provider.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close provider: %w", err))
		}
		if err := s.gen.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close genstore: %w", err))
		}
		if err := s.store.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush store: %w", err))
		}
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
