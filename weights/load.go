package weights

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/weave-ml/weave/logutil"
	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
	"github.com/weave-ml/weave/nn"
)

// Load reads the given shards in parallel and updates m's matching
// parameters. Tensor names the module has no member for are ignored, so
// a checkpoint may carry more than the module needs; use LoadStrict to
// fail on them instead.
func Load(ctx ml.Context, m nn.Module, paths ...string) error {
	return load(ctx, m, false, paths)
}

// LoadStrict is Load, except tensor names that match no parameter of m
// fail the load before anything is written.
func LoadStrict(ctx ml.Context, m nn.Module, paths ...string) error {
	return load(ctx, m, true, paths)
}

type namedTensor struct {
	name string
	t    ml.Tensor
}

func load(ctx ml.Context, m nn.Module, strict bool, paths []string) error {
	shards := make([][]namedTensor, len(paths))

	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			f, err := Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			for _, name := range f.Names() {
				t, err := f.Tensor(ctx, name)
				if err != nil {
					return err
				}
				logutil.Trace("read tensor", "name", name, "file", path)
				shards[i] = append(shards[i], namedTensor{name, t})
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	tree := nested.NewDictionary[ml.Tensor]()
	from := make(map[string]string)
	for i, shard := range shards {
		for _, nt := range shard {
			if prev, ok := from[nt.name]; ok {
				return fmt.Errorf("weights: tensor %q in both %s and %s", nt.name, prev, paths[i])
			}
			from[nt.name] = paths[i]
			tree.SetPath(nt.name, nested.Value[ml.Tensor]{Val: nt.t})
		}
	}

	if strict {
		params := nn.Parameters(m)

		var unmatched []string
		names := maps.Keys(from)
		slices.Sort(names)
		for _, name := range names {
			if _, ok := params.GetPath(name); !ok {
				unmatched = append(unmatched, name)
			}
		}
		if len(unmatched) > 0 {
			return fmt.Errorf("weights: no parameter for %s", strings.Join(unmatched, ", "))
		}
	}

	slog.Debug("loading weights", "tensors", len(from), "files", len(paths))
	nn.Update(m, tree)
	return nil
}
