package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samcharles93/quill/internal/logger"
	"github.com/samcharles93/quill/internal/logits"
	"github.com/samcharles93/quill/internal/model"
	"github.com/samcharles93/quill/internal/tokenizer"
)

// State is a generation loop state.
type State int

const (
	StateInit State = iota
	StateStep
	StateSample
	StateAppend
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStep:
		return "step"
	case StateSample:
		return "sample"
	case StateAppend:
		return "append"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrSessionDone is returned by Advance once the session has finished.
var ErrSessionDone = errors.New("session already done")

// Session is one generation run: INIT → STEP → SAMPLE → APPEND → (STEP |
// DONE). It owns its cache and token history and must be driven from a
// single goroutine. Abandoning a session needs no cleanup.
type Session struct {
	ID string

	model   Stepper
	tok     *tokenizer.GPT2Tokenizer
	sampler *logits.Sampler
	log     logger.Logger
	req     Request
	stop    []int
	ctxLen  int

	state   State
	cache   *model.KVCache
	prompt  []int
	pending [][]int
	logits  *model.Logits
	next    []int
	out     [][]int
	stopped []bool
	count   int
	finish  FinishReason

	stream   StreamFunc
	decoders []*tokenizer.StreamDecoder
	stats    Stats
	started  time.Time
}

func newSession(m Stepper, tok *tokenizer.GPT2Tokenizer, log logger.Logger, req Request) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Seed < 0 {
		req.Seed = time.Now().UnixNano() & (1<<62 - 1)
	}
	sampler, err := logits.NewSampler(logits.SamplerConfig{
		Seed:        req.Seed,
		Temperature: req.Temperature,
		TopK:        req.TopK,
	})
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		model:   m,
		tok:     tok,
		sampler: sampler,
		log:     log.With("session", id),
		req:     req,
		stop:    BuildStopTokens(tok, req),
		ctxLen:  m.Hyperparameters().ContextLength,
		state:   StateInit,
	}, nil
}

// State reports the state the next Advance will execute.
func (s *Session) State() State { return s.state }

// SeenLength is the number of positions held in the cache.
func (s *Session) SeenLength() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.SeenLength()
}

// Generated returns the ids produced so far for row b.
func (s *Session) Generated(b int) []int { return slices.Clone(s.out[b]) }

// Advance executes the current state and moves to the next one. A cancelled
// ctx is honoured at the STEP boundary; the session is left in StateStep and
// can be resumed or dropped.
func (s *Session) Advance(ctx context.Context) (State, error) {
	var err error
	switch s.state {
	case StateInit:
		err = s.init()
	case StateStep:
		if err = ctx.Err(); err == nil {
			err = s.step()
		}
	case StateSample:
		err = s.sample()
	case StateAppend:
		s.append()
	case StateDone:
		return StateDone, ErrSessionDone
	}
	if err != nil {
		return s.state, err
	}
	if s.log.Enabled(slog.LevelDebug) {
		s.log.Debug("advance", "state", s.state.String(), "seen", s.SeenLength(), "generated", s.count)
	}
	return s.state, nil
}

func (s *Session) init() error {
	var initial []int
	switch {
	case s.req.Prompt != "":
		var err error
		if s.req.Specials {
			initial, err = s.tok.EncodeWithSpecials(s.req.Prompt)
		} else {
			initial, err = s.tok.Encode(s.req.Prompt)
		}
		if err != nil {
			return fmt.Errorf("encode prompt: %w", err)
		}
	default:
		start := s.req.StartToken
		if start < 0 {
			id, ok := s.tok.EndOfTextID()
			if !ok {
				return fmt.Errorf("no start token: vocabulary has no %s", tokenizer.EndOfText)
			}
			start = id
		}
		initial = []int{start}
	}
	if len(initial) > s.ctxLen {
		return model.ContextOverflowError{Position: len(initial) - 1, ContextLength: s.ctxLen}
	}

	rows := s.req.Samples
	s.prompt = initial
	s.pending = make([][]int, rows)
	s.out = make([][]int, rows)
	s.stopped = make([]bool, rows)
	s.decoders = make([]*tokenizer.StreamDecoder, rows)
	for b := range rows {
		s.pending[b] = initial
		s.decoders[b] = s.tok.NewStreamDecoder()
	}
	s.stats.PromptTokens = len(initial)
	s.started = time.Now()
	s.state = StateStep
	return nil
}

func (s *Session) step() error {
	out, cache, err := safeStep(s.model, s.pending, s.cache)
	if err != nil {
		return err
	}
	s.logits, s.cache = out, cache
	s.pending = nil
	s.state = StateSample
	return nil
}

func safeStep(m Stepper, tokens [][]int, cache *model.KVCache) (l *model.Logits, c *model.KVCache, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Step: %v", rec)
		}
	}()
	return m.Step(tokens, cache)
}

func (s *Session) sample() error {
	next, err := s.sampler.SampleBatch(s.logits.LastRows())
	if err != nil {
		return err
	}
	s.next = next
	s.logits = nil
	s.state = StateAppend
	return nil
}

func (s *Session) append() {
	s.count++
	pending := make([][]int, len(s.next))
	for b, id := range s.next {
		pending[b] = []int{id}
		if s.stopped[b] {
			continue
		}
		if _, hit := slices.BinarySearch(s.stop, id); hit {
			s.stopped[b] = true
			continue
		}
		s.out[b] = append(s.out[b], id)
		s.stats.TokensGenerated++
		s.emit(b, id)
	}
	s.next = nil

	switch {
	case !slices.Contains(s.stopped, false):
		s.done(FinishStop)
	case s.req.MaxTokens > 0 && s.count >= s.req.MaxTokens:
		s.done(FinishLength)
	case s.cache.SeenLength()+1 > s.ctxLen:
		s.done(FinishContext)
	default:
		s.pending = pending
		s.state = StateStep
	}
}

func (s *Session) emit(b, id int) {
	if s.stream == nil {
		return
	}
	text, err := s.decoders[b].Push(id)
	if err != nil {
		// Sampled ids always lie inside the vocabulary.
		s.log.Warn("stream decode", "row", b, "id", id, "error", err)
		return
	}
	if text != "" {
		s.stream(b, text)
	}
}

func (s *Session) done(reason FinishReason) {
	s.finish = reason
	s.state = StateDone
	s.stats.finish(s.started)
	if s.stream != nil {
		for b, d := range s.decoders {
			if tail := d.Flush(); tail != "" {
				s.stream(b, tail)
			}
		}
	}
	s.log.Debug("session done", "finish", string(reason), "generated", s.stats.TokensGenerated, "tps", s.stats.TPS)
}

// Run drives the session to completion, streaming text through stream when
// it is non-nil.
func (s *Session) Run(ctx context.Context, stream StreamFunc) (*Result, error) {
	s.stream = stream
	for s.state != StateDone {
		if _, err := s.Advance(ctx); err != nil {
			return nil, err
		}
	}
	return s.Result()
}

// Result assembles the output of a finished session.
func (s *Session) Result() (*Result, error) {
	if s.state != StateDone {
		return nil, fmt.Errorf("session %s not done (state %s)", s.ID, s.state)
	}
	res := &Result{
		ID:           s.ID,
		PromptTokens: slices.Clone(s.prompt),
		Samples:      make([]Sample, len(s.out)),
		Finish:       s.finish,
		Seed:         s.req.Seed,
		Stats:        s.stats,
	}
	for b, ids := range s.out {
		text, err := s.tok.Decode(ids)
		if err != nil {
			return nil, fmt.Errorf("decode row %d: %w", b, err)
		}
		res.Samples[b] = Sample{Tokens: slices.Clone(ids), Text: text}
	}
	return res, nil
}
