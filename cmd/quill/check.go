package main

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/floats"

	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tokenizer"
)

type diffStats struct {
	MaxAbs      float64
	MeanAbs     float64
	RMSE        float64
	Cosine      float64
	Top1A       int
	Top1B       int
	Top1Match   bool
	TopKOverlap int
}

type diffAccumulator struct {
	count       int
	maxAbs      float64
	meanAbs     float64
	top1Match   int
	topKOverlap int
}

func (a *diffAccumulator) add(s diffStats) {
	a.count++
	a.maxAbs = max(a.maxAbs, s.MaxAbs)
	a.meanAbs += s.MeanAbs
	if s.Top1Match {
		a.top1Match++
	}
	a.topKOverlap += s.TopKOverlap
}

// checkCacheCmd replays a greedy decode twice, once through the KV cache and
// once recomputing the whole prefix every step, and reports how far the
// logits drift apart.
func checkCacheCmd() *cli.Command {
	var (
		prompt    string
		steps     int64
		topK      int64
		tolerance float64
	)
	return &cli.Command{
		Name:  "check-cache",
		Usage: "Compare cached incremental logits against full recomputation",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{Name: "prompt", Aliases: []string{"p"}, Usage: "prompt text (empty = <|endoftext|>)", Destination: &prompt},
			&cli.Int64Flag{Name: "steps", Value: 8, Usage: "generated steps to compare", Destination: &steps},
			&cli.Int64Flag{Name: "topk", Value: 5, Usage: "top-k overlap to report", Destination: &topK},
			&cli.Float64Flag{Name: "tolerance", Value: 1e-3, Usage: "largest accepted absolute logit difference", Destination: &tolerance},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(c, cfg)
			dir, err := resolveModelDir(modelDir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			tok, err := tokenizer.LoadDir(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}
			m, err := loadModel(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}

			ids, err := tok.Encode(prompt)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
			}
			if len(ids) == 0 {
				eot, ok := tok.EndOfTextID()
				if !ok {
					return cli.Exit("error: empty prompt and no <|endoftext|> token", 1)
				}
				ids = []int{eot}
			}
			log.Info("checking cache", "dir", dir, "prompt_tokens", len(ids), "steps", steps)

			acc, err := compareCache(m, ids, int(steps), int(topK), func(step, token int, s diffStats) {
				fmt.Printf("step=%d token=%d max_abs=%.3g mean_abs=%.3g rmse=%.3g cos=%.6f top1=%v top%d=%d\n",
					step, token, s.MaxAbs, s.MeanAbs, s.RMSE, s.Cosine, s.Top1Match, topK, s.TopKOverlap)
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if acc.count == 0 {
				fmt.Println("nothing compared")
				return nil
			}
			fmt.Printf("summary: steps=%d max_abs=%.3g mean_abs=%.3g top1_match=%d/%d\n",
				acc.count, acc.maxAbs, acc.meanAbs/float64(acc.count), acc.top1Match, acc.count)
			if acc.maxAbs > tolerance || acc.top1Match != acc.count {
				return cli.Exit(fmt.Sprintf("cache check failed: max_abs %.3g exceeds %.3g or argmax diverged", acc.maxAbs, tolerance), 1)
			}
			return nil
		},
	}
}

func loadModel(dir string) (*model.Model, error) {
	if !randomWeights {
		return model.LoadDir(dir)
	}
	hp, err := model.LoadHyperparameters(dir)
	if err != nil {
		return nil, err
	}
	return model.New(hp, model.NewRandomWeights(hp, 0, 0.02))
}

// compareCache decodes greedily from ids for up to steps tokens, stopping
// early when the context is full.
func compareCache(m *model.Model, ids []int, steps, topK int, report func(step, token int, s diffStats)) (diffAccumulator, error) {
	var acc diffAccumulator
	ctxLen := m.Hyperparameters().ContextLength
	if len(ids) > ctxLen {
		return acc, model.ContextOverflowError{Position: len(ids) - 1, ContextLength: ctxLen}
	}
	seq := slices.Clone(ids)
	pending := seq
	var cache *model.KVCache
	for step := range steps {
		inc, next, err := m.Step([][]int{pending}, cache)
		if err != nil {
			return acc, err
		}
		cache = next
		full, err := m.Forward([][]int{seq})
		if err != nil {
			return acc, err
		}
		s := diffLogits(inc.Last(0), full.Last(0), topK)
		acc.add(s)
		report(step, s.Top1A, s)

		if len(seq) == ctxLen {
			break
		}
		seq = append(seq, s.Top1A)
		pending = []int{s.Top1A}
	}
	return acc, nil
}

func diffLogits(a, b []float32, topK int) diffStats {
	n := min(len(a), len(b))
	if n == 0 {
		return diffStats{}
	}
	fa := make([]float64, n)
	fb := make([]float64, n)
	for i := range n {
		fa[i], fb[i] = float64(a[i]), float64(b[i])
	}

	s := diffStats{
		MaxAbs:  floats.Distance(fa, fb, math.Inf(1)),
		MeanAbs: floats.Distance(fa, fb, 1) / float64(n),
		RMSE:    floats.Distance(fa, fb, 2) / math.Sqrt(float64(n)),
		Top1A:   floats.MaxIdx(fa),
		Top1B:   floats.MaxIdx(fb),
	}
	s.Top1Match = s.Top1A == s.Top1B
	if na, nb := floats.Norm(fa, 2), floats.Norm(fb, 2); na > 0 && nb > 0 {
		s.Cosine = floats.Dot(fa, fb) / (na * nb)
	}
	if topK > 1 {
		ta := topKIndices(fa, topK)
		for _, idx := range topKIndices(fb, topK) {
			if slices.Contains(ta, idx) {
				s.TopKOverlap++
			}
		}
	}
	return s
}

func topKIndices(vals []float64, k int) []int {
	k = min(k, len(vals))
	if k <= 0 {
		return nil
	}
	idx := make([]int, len(vals))
	floats.Argsort(slices.Clone(vals), idx)
	top := idx[len(idx)-k:]
	slices.Reverse(top)
	return top
}
