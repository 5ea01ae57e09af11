package scoring

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/handshape-backend/internal/engine"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
)

var ErrNoImage = errors.New("no captured image to evaluate")

// FallbackFeedback is shown when the scorer could not produce a verdict.
const FallbackFeedback = "AIとの通信でエラーが発生しました。時間をおいてもう一度試してみてね。"

type Request struct {
	PlayerID  string
	HandShape prompt.HandShape
	Image     string
	Prompt    prompt.Prompt
}

type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (engine.Evaluation, error)
}

type EvaluatorFunc func(ctx context.Context, req Request) (engine.Evaluation, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, req Request) (engine.Evaluation, error) {
	return f(ctx, req)
}

// Random hands out synthetic scores; it stands in for the AI when no
// photo is captured.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Random{rng: rng}
}

var randomFeedback = []string{
	"すごい！そっくりだね！",
	"いいかんじ！",
	"おしい！もうすこし！",
	"つぎはもっとがんばろう！",
}

func (r *Random) Evaluate(_ context.Context, _ Request) (engine.Evaluation, error) {
	r.mu.Lock()
	points := r.rng.IntN(101)
	r.mu.Unlock()
	fb := randomFeedback[min(len(randomFeedback)-1, (100-points)/25)]
	return engine.Evaluation{Points: points, Feedback: fb}, nil
}

type Options struct {
	Timeout     time.Duration // per evaluation
	Concurrency int
}

// Scorer evaluates a whole ballot. A failing evaluation degrades to a zero
// score for that player only.
type Scorer struct {
	eval Evaluator
	opts Options
	log  *zap.Logger
}

func NewScorer(eval Evaluator, opts Options, log *zap.Logger) *Scorer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{eval: eval, opts: opts, log: log}
}

func (s *Scorer) Score(ctx context.Context, b engine.Ballot) map[string]engine.Evaluation {
	evals := make([]engine.Evaluation, len(b.Entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, e := range b.Entries {
		if e.Forfeit {
			continue
		}
		g.Go(func() error {
			evals[i] = s.evaluateOne(gctx, Request{
				PlayerID:  e.PlayerID,
				HandShape: e.HandShape,
				Image:     e.Image,
				Prompt:    b.Prompt,
			})
			return nil
		})
	}
	_ = g.Wait() // evaluateOne never fails

	out := make(map[string]engine.Evaluation, len(b.Entries))
	for i, e := range b.Entries {
		if e.Forfeit {
			continue
		}
		out[e.PlayerID] = evals[i]
	}
	return out
}

func (s *Scorer) evaluateOne(ctx context.Context, req Request) engine.Evaluation {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	ev, err := s.safeEvaluate(ctx, req)
	if err != nil {
		s.log.Warn("scoring unavailable, using fallback",
			zap.String("player_id", req.PlayerID),
			zap.String("prompt_id", req.Prompt.ID),
			zap.Error(err),
		)
		return engine.Evaluation{Points: 0, Feedback: FallbackFeedback, Unavailable: true}
	}
	ev.Points = max(0, min(100, ev.Points))
	return ev
}

func (s *Scorer) safeEvaluate(ctx context.Context, req Request) (ev engine.Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()
	return s.eval.Evaluate(ctx, req)
}
