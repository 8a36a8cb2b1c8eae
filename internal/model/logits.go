package model

// Logits are next-token scores laid out [batch, steps, vocab].
type Logits struct {
	Batch int
	Steps int
	Vocab int
	Data  []float32
}

// Row returns the scores for batch row b at step s of the call.
func (l *Logits) Row(b, s int) []float32 {
	off := (b*l.Steps + s) * l.Vocab
	return l.Data[off : off+l.Vocab]
}

// Last returns the scores for the final position of batch row b, the only
// ones needed to sample the next token.
func (l *Logits) Last(b int) []float32 { return l.Row(b, l.Steps-1) }

// LastRows returns Last for every batch row.
func (l *Logits) LastRows() [][]float32 {
	rows := make([][]float32, l.Batch)
	for b := range rows {
		rows[b] = l.Last(b)
	}
	return rows
}
