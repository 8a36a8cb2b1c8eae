package model

// LayerKV holds one layer's keys and values. Keys[b*heads+h] is a flat
// [seen, headDim] slice for batch row b and head h; Values likewise.
type LayerKV struct {
	Keys   [][]float32
	Values [][]float32
}

// KVCache accumulates per-layer keys and values across steps. It belongs to
// one session and is extended in place by Model.Step.
type KVCache struct {
	batch   int
	heads   int
	headDim int
	seen    int
	layers  []LayerKV
}

// NewKVCache returns an empty cache for batch rows of a model shaped hp.
func NewKVCache(hp Hyperparameters, batch int) *KVCache {
	c := &KVCache{
		batch:   batch,
		heads:   hp.HeadCount,
		headDim: hp.HeadDim(),
		layers:  make([]LayerKV, hp.LayerCount),
	}
	for i := range c.layers {
		c.layers[i] = newLayerKV(batch * hp.HeadCount)
	}
	return c
}

func newLayerKV(n int) LayerKV {
	return LayerKV{Keys: make([][]float32, n), Values: make([][]float32, n)}
}

// SeenLength is the number of positions processed so far, prompt included.
func (c *KVCache) SeenLength() int { return c.seen }

// Batch is the number of rows the cache was created for.
func (c *KVCache) Batch() int { return c.batch }

// Shape reports [batch, heads, seen, headDim].
func (c *KVCache) Shape() [4]int { return [4]int{c.batch, c.heads, c.seen, c.headDim} }

// Layer returns layer i's entries. Callers must not modify them.
func (c *KVCache) Layer(i int) LayerKV { return c.layers[i] }

// Clone deep-copies the cache so two continuations can diverge.
func (c *KVCache) Clone() *KVCache {
	out := *c
	out.layers = make([]LayerKV, len(c.layers))
	for i, l := range c.layers {
		nl := newLayerKV(len(l.Keys))
		for j := range l.Keys {
			nl.Keys[j] = append([]float32(nil), l.Keys[j]...)
			nl.Values[j] = append([]float32(nil), l.Values[j]...)
		}
		out.layers[i] = nl
	}
	return &out
}

// extend concatenates each layer's present along the sequence axis.
func (c *KVCache) extend(presents []LayerKV, steps int) {
	for i, p := range presents {
		l := &c.layers[i]
		for j := range p.Keys {
			l.Keys[j] = append(l.Keys[j], p.Keys[j]...)
			l.Values[j] = append(l.Values[j], p.Values[j]...)
		}
	}
	c.seen += steps
}
