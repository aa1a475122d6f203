package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/huangsam/offcache/internal/contract"
	"golang.org/x/sync/errgroup"
)

// Activate deletes every cache other than the current one, then claims all
// open clients. Deletions are independent: one failure does not stop the others.
func (w *Worker) Activate(ctx context.Context, ev contract.ActivateEvent) error {
	err := w.deleteStaleCaches(ctx)

	if claimErr := ev.Claim(ctx); claimErr != nil {
		err = errors.Join(err, fmt.Errorf("claim clients: %w", claimErr))
	}
	return err
}

func (w *Worker) deleteStaleCaches(ctx context.Context) error {
	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, name := range names {
		if name == w.cfg.CacheName {
			continue
		}
		w.console.Log("Deleting old cache: %s", name)
		g.Go(func() error {
			if _, err := w.storage.Delete(ctx, name); err != nil {
				err = fmt.Errorf("delete cache %q: %w", name, err)
				w.console.Error("Deleting old cache failed", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
