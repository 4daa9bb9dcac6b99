package multidoc

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// EncodeAll encodes raw examples concurrently over workers goroutines,
// preserving input order in the result. Encoding is stateless per example, so
// the only coordination needed is the bounded group itself. Malformed examples
// are reported and excluded, matching EncodeBatch.
//
// workers <= 0 selects GOMAXPROCS.
func (e *Encoder) EncodeAll(ctx context.Context, raw []RawExample, workers int) ([]*Example, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*Example, len(raw))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range raw {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex, err := e.Encode(raw[i].Source, raw[i].Target)
			if err != nil {
				if err == ErrNoPassages {
					klog.Warningf("dropping example %d with no usable passages: source=%q target=%q",
						i, clip(raw[i].Source, 120), clip(raw[i].Target, 120))
					return nil
				}
				return err
			}
			results[i] = ex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	kept := make([]*Example, 0, len(results))
	for _, ex := range results {
		if ex != nil {
			kept = append(kept, ex)
		}
	}
	return kept, nil
}
