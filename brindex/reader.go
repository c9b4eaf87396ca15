package brindex

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/skypexu/plfs-core/iostore"
)

// collectDroppings walks the container's writer subdirectories and
// returns the bpath of every index dropping, sorted. A container (or
// subdirectory) that does not exist yet is an empty index, not an error.
func collectDroppings(ctx context.Context, container iostore.Pathback) ([]string, error) {
	names, err := container.Store.ReadDir(ctx, container.BPath)
	if err != nil {
		if iostore.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var drops []string
	for _, name := range names {
		if !strings.HasPrefix(name, HostDirPrefix) {
			continue
		}
		subdir := container.BPath + "/" + name
		files, err := container.Store.ReadDir(ctx, subdir)
		if err != nil {
			if iostore.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, f := range files {
			if strings.HasPrefix(f, IndexPrefix) {
				drops = append(drops, subdir+"/"+f)
			}
		}
	}
	sort.Strings(drops)
	return drops, nil
}

// aggregate scans every index dropping of the container into one read
// state. With a uniform restart hint only droppings written by the given
// rank are scanned. Scans fan out over a bounded worker pool; each worker
// folds its share of droppings into a private state and the partials are
// merged single-threaded with the same resolution rules, which keeps the
// result independent of scheduling.
func aggregate(
	ctx context.Context, container iostore.Pathback, workers int,
	urestart bool, urank int32,
) (*readState, error) {

	drops, err := collectDroppings(ctx, container)
	if err != nil {
		return nil, err
	}

	if urestart {
		kept := drops[:0]
		for _, d := range drops {
			wid, err := droppingWriterID(d)
			if err != nil {
				return nil, err
			}
			if wid == urank {
				kept = append(kept, d)
			}
		}
		drops = kept
	}

	if workers > len(drops) {
		workers = len(drops)
	}
	if workers <= 1 {
		rs := &readState{}
		for _, d := range drops {
			if err := rs.addDropping(ctx, container.Store, d); err != nil {
				return nil, err
			}
		}
		return rs, nil
	}

	parts := make([]*readState, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			p := &readState{}
			for i := w; i < len(drops); i += workers {
				if err := p.addDropping(gctx, container.Store, drops[i]); err != nil {
					return err
				}
			}
			parts[w] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// A format error in any dropping aborts the whole scan; no
		// dropping is ever skipped silently.
		return nil, err
	}

	rs := parts[0]
	for _, p := range parts[1:] {
		rs.merge(p)
	}
	return rs, nil
}
