package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/geckoctl/internal/gecko"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func runDumpRegions(ctx context.Context, inv *invocation) error {
	written, err := dumpRegions(ctx, inv.session, inv.args[0], inv.cfg.Parallel)
	for _, path := range written {
		fmt.Fprintln(inv.out, path)
	}
	return err
}

// dumpRegions reads every mapped region over s, one at a time, while up to
// parallel finished windows are written to dir concurrently.
func dumpRegions(ctx context.Context, s *gecko.Session, dir string, parallel int) ([]string, error) {
	regions, err := s.MemoryRegionRequest(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	paths := make([]string, len(regions))

	for i, r := range regions {
		if gctx.Err() != nil {
			break
		}
		if r.Clamped() {
			log.Warn().Uint32("start", r.Start).Uint32("size", r.Size).Msg("geckoctl region clamped to the 32-bit address space")
		}
		win, err := gecko.NewWindow(r.Start, r.End())
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		res, err := s.DumpWindow(gctx, win, nil)
		if err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("dump region 0x%08X: %w", r.Start, err)
		}
		if res.Cancelled {
			log.Info().Uint32("start", r.Start).Msg("geckoctl dump-regions cancelled")
			break
		}

		path := filepath.Join(dir, fmt.Sprintf("%08X-%08X.bin", r.Start, r.End()))
		g.Go(func() error {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if _, err := win.WriteTo(f); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			paths[i] = path
			log.Debug().Str("path", path).Uint32("size", win.Len()).Msg("geckoctl region written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := paths[:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
