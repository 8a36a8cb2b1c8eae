package model

import (
	"math"

	"github.com/samcharles93/quill/internal/tensor"
)

// maskedScore is added in place of scores for future positions.
const maskedScore = -1e10

// block applies one pre-norm decoder block to x in place and returns the
// keys and values it computed for this call's positions.
func (m *Model) block(blk *Block, x *tensor.Mat, s *scratch, past LayerKV, batch, steps, seen int) LayerKV {
	eps := m.hp.LayerNormEpsilon

	layerNormRows(&s.normed, x, blk.LN1, eps)
	tensor.Linear(&s.qkv, &s.normed, &blk.Attn.W, blk.Attn.B)
	present := m.splitPresent(&s.qkv, batch, steps)
	m.attention(&s.attn, &s.qkv, past, present, batch, steps, seen)
	tensor.Linear(&s.proj, &s.attn, &blk.AttnProj.W, blk.AttnProj.B)
	tensor.Add(x.Data, s.proj.Data)

	layerNormRows(&s.normed, x, blk.LN2, eps)
	tensor.Linear(&s.fc, &s.normed, &blk.FC.W, blk.FC.B)
	tensor.GELUInPlace(s.fc.Data)
	tensor.Linear(&s.proj, &s.fc, &blk.Proj.W, blk.Proj.B)
	tensor.Add(x.Data, s.proj.Data)

	return present
}

// splitPresent copies keys and values out of the packed q|k|v rows into
// per-(row, head) [steps, headDim] slices.
func (m *Model) splitPresent(qkv *tensor.Mat, batch, steps int) LayerKV {
	heads, hd, c := m.hp.HeadCount, m.hp.HeadDim(), m.hp.EmbedWidth
	kv := newLayerKV(batch * heads)
	for b := range batch {
		for h := range heads {
			keys := make([]float32, steps*hd)
			vals := make([]float32, steps*hd)
			for t := range steps {
				r := qkv.Row(b*steps + t)
				copy(keys[t*hd:(t+1)*hd], r[c+h*hd:c+(h+1)*hd])
				copy(vals[t*hd:(t+1)*hd], r[2*c+h*hd:2*c+(h+1)*hd])
			}
			kv.Keys[b*heads+h] = keys
			kv.Values[b*heads+h] = vals
		}
	}
	return kv
}

// attention writes the merged-head context vectors for every position into
// out. Keys are the cached history followed by this call's present; position
// t of the call sits at absolute index seen+t and may not look past it.
func (m *Model) attention(out, qkv *tensor.Mat, past, present LayerKV, batch, steps, seen int) {
	heads, hd := m.hp.HeadCount, m.hp.HeadDim()
	scale := float32(1 / math.Sqrt(float64(hd)))
	total := seen + steps

	tensor.ParallelFor(batch*heads, func(bh int) {
		b, h := bh/heads, bh%heads
		pastK, pastV := past.Keys[bh], past.Values[bh]
		curK, curV := present.Keys[bh], present.Values[bh]
		scores := make([]float32, total)

		for t := range steps {
			row := b*steps + t
			q := qkv.Row(row)[h*hd : (h+1)*hd]
			pos := seen + t
			for j := range total {
				if j > pos {
					scores[j] = maskedScore
					continue
				}
				scores[j] = tensor.Dot(q, keyAt(pastK, curK, j, seen, hd)) * scale
			}
			tensor.Softmax(scores)

			ctx := out.Row(row)[h*hd : (h+1)*hd]
			clear(ctx)
			for j := 0; j <= pos; j++ {
				p := scores[j]
				v := keyAt(pastV, curV, j, seen, hd)
				for d := range ctx {
					ctx[d] += p * v[d]
				}
			}
		}
	})
}

// keyAt returns position j's vector, reading the cached history for j < seen
// and the present otherwise. It serves keys and values alike.
func keyAt(past, cur []float32, j, seen, hd int) []float32 {
	if j < seen {
		return past[j*hd : (j+1)*hd]
	}
	j -= seen
	return cur[j*hd : (j+1)*hd]
}
