package loader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"CourseStore/internal/course"
)

type Stats struct {
	Sources int
	Loaded  int
	Skipped int
}

// Loader fills a store from its sources at startup.
type Loader struct {
	Store *course.Store
	Log   *zap.Logger
	// Strict aborts on the first invalid record instead of skipping it.
	Strict bool
}

// Load fetches every source concurrently, then inserts records in source
// order so ids come out the same on every run. Each insert is a regular
// Create, keeping the title index consistent per record.
func (l *Loader) Load(ctx context.Context, sources ...Source) (Stats, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	batches := make([][]map[string]any, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			recs, err := src.Fetch(gctx)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.Name(), err)
			}
			batches[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	st := Stats{Sources: len(sources)}
	for i, recs := range batches {
		name := sources[i].Name()
		for n, raw := range recs {
			if err := l.insert(raw); err != nil {
				if l.Strict {
					return st, fmt.Errorf("source %s record %d: %w", name, n, err)
				}
				log.Warn("skipping record",
					zap.String("source", name),
					zap.Int("record", n),
					zap.Error(err),
				)
				st.Skipped++
				continue
			}
			st.Loaded++
		}
	}

	log.Info("data loaded",
		zap.Int("sources", st.Sources),
		zap.Int("loaded", st.Loaded),
		zap.Int("skipped", st.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return st, nil
}

func (l *Loader) insert(raw map[string]any) error {
	in, err := course.ParseInput(raw)
	if err != nil {
		return err
	}
	_, err = l.Store.Create(in)
	return err
}
