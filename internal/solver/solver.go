package solver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"

	"icpquery/internal/background"
	"icpquery/internal/config"
	"icpquery/internal/detect"
	"icpquery/internal/logging"
	"icpquery/internal/metrics"
	"icpquery/internal/miit"
	"icpquery/internal/services"
	"icpquery/internal/similarity"
	"icpquery/internal/tracing"
)

// ExpectedBoxes is the number of glyph boxes a valid challenge image holds.
const ExpectedBoxes = 5

const component = "solver"

var (
	defaultGlyphOffsets = []int{165, 200, 231, 265}
	defaultThreshold    = 0.7
)

// Challenger is the part of the registry client a solve attempt needs.
type Challenger interface {
	FetchChallenge(ctx context.Context, clientUID string) (*miit.Challenge, error)
	VerifyChallenge(ctx context.Context, req miit.VerifyRequest) (miit.Credential, error)
}

// Solver runs challenge attempts. It holds no per-attempt state and may be
// shared, though the pool only ever runs one attempt at a time.
type Solver struct {
	registry Challenger
	matcher  *background.Matcher
	detector detect.Detector
	scorer   similarity.Scorer

	offsets   []int
	threshold float64
	clientUID func() string
	normalize func(gocv.Mat) gocv.Mat

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// Option customizes a Solver.
type Option func(*Solver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Solver) {
		s.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithTracer sets the tracer used for attempt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Solver) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMetrics records attempt outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Solver) { s.metrics = m }
}

// WithCaptchaConfig applies glyph offsets and the match threshold.
func WithCaptchaConfig(cfg config.Captcha) Option {
	return func(s *Solver) {
		if len(cfg.GlyphOffsets) > 0 {
			s.offsets = append([]int(nil), cfg.GlyphOffsets...)
		}
		if cfg.Threshold > 0 {
			s.threshold = cfg.Threshold
		}
	}
}

// WithClientUID overrides client UID generation.
func WithClientUID(fn func() string) Option {
	return func(s *Solver) {
		if fn != nil {
			s.clientUID = fn
		}
	}
}

// WithNormalizer overrides crop normalization (used by tests).
func WithNormalizer(fn func(gocv.Mat) gocv.Mat) Option {
	return func(s *Solver) {
		if fn != nil {
			s.normalize = fn
		}
	}
}

// New constructs a Solver.
func New(registry Challenger, matcher *background.Matcher, detector detect.Detector, scorer similarity.Scorer, opts ...Option) *Solver {
	s := &Solver{
		registry:  registry,
		matcher:   matcher,
		detector:  detector,
		scorer:    scorer,
		offsets:   append([]int(nil), defaultGlyphOffsets...),
		threshold: defaultThreshold,
		clientUID: miit.NewClientUID,
		normalize: similarity.Normalize,
		logger:    logging.NewComponentLogger(nil, component),
		tracer:    tracing.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve runs one complete attempt and returns the verified credential.
func (s *Solver) Solve(ctx context.Context) (cred miit.Credential, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, tracing.SpanSolveAttempt)
	defer func() {
		s.metrics.ObserveSolve(outcome(err), time.Since(started))
		tracing.End(span, err)
	}()

	clientUID := s.clientUID()
	challenge, err := s.registry.FetchChallenge(ctx, clientUID)
	if err != nil {
		return miit.Credential{}, err
	}
	span.SetAttributes(attribute.String(tracing.AttrChallengeID, challenge.UUID))
	logger := s.logger.With(logging.ChallengeID(challenge.UUID))

	points, err := s.Points(ctx, challenge)
	if err != nil {
		logger.Debug("challenge attempt failed", logging.Error(err))
		return miit.Credential{}, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrPoints, len(points)))
	if len(points) < MaxAssignments {
		logger.Debug("submitting partial answer", logging.Int("points", len(points)))
	}

	payload, err := EncryptPoints(points, challenge.SecretKey)
	if err != nil {
		return miit.Credential{}, err
	}
	cred, err = s.registry.VerifyChallenge(ctx, miit.VerifyRequest{
		Token:     challenge.UUID,
		SecretKey: challenge.SecretKey,
		ClientUID: clientUID,
		PointJSON: payload,
	})
	if err != nil {
		logger.Debug("challenge verification failed", logging.Error(err))
		return miit.Credential{}, err
	}
	logger.Info("challenge solved",
		logging.Int("points", len(points)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return cred, nil
}

// Points computes the click positions for challenge without submitting them.
func (s *Solver) Points(ctx context.Context, challenge *miit.Challenge) ([]Point, error) {
	full, err := decodeImage(challenge.BigImage, "full image")
	if err != nil {
		return nil, err
	}
	defer full.Close()
	strip, err := decodeImage(challenge.SmallImage, "glyph strip")
	if err != nil {
		return nil, err
	}
	defer strip.Close()

	boxes, err := s.detect(ctx, full)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrBoxes, len(boxes)))

	assigned, err := s.match(full, strip, boxes)
	if err != nil {
		return nil, err
	}
	return ClickPoints(boxes, assigned), nil
}

func (s *Solver) detect(ctx context.Context, full gocv.Mat) ([]detect.Box, error) {
	result, err := s.matcher.Difference(full)
	if err != nil {
		return nil, err
	}
	defer result.Diff.Close()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrTemplate, result.Template))

	buf, err := gocv.IMEncode(gocv.PNGFileExt, result.Diff)
	if err != nil {
		return nil, fmt.Errorf("encode difference image: %w", err)
	}
	png := bytes.Clone(buf.GetBytes())
	buf.Close()

	boxes, err := s.detector.Detect(ctx, png)
	if err != nil {
		return nil, err
	}
	if len(boxes) != ExpectedBoxes {
		return nil, services.Wrap(services.ErrDetectionCount, component, "detect",
			fmt.Sprintf("got %d boxes, want %d", len(boxes), ExpectedBoxes), nil)
	}
	return boxes, nil
}

func (s *Solver) match(full, strip gocv.Mat, boxes []detect.Box) ([]int, error) {
	glyphs := make([]gocv.Mat, len(s.offsets))
	glyphOK := make([]bool, len(s.offsets))
	stripBounds := matBounds(strip)
	for i, x := range s.offsets {
		glyphs[i], glyphOK[i] = cropBlob(strip, glyphRect(x, stripBounds), s.normalize)
	}
	candidates := make([]gocv.Mat, len(boxes))
	candidateOK := make([]bool, len(boxes))
	candidateDone := make([]bool, len(boxes))
	defer func() {
		for i := range glyphs {
			if glyphOK[i] {
				_ = glyphs[i].Close()
			}
		}
		for i := range candidates {
			if candidateOK[i] {
				_ = candidates[i].Close()
			}
		}
	}()

	fullBounds := matBounds(full)
	score := func(g, b int) (float64, error) {
		if !glyphOK[g] {
			return 0, nil
		}
		if !candidateDone[b] {
			candidates[b], candidateOK[b] = cropBlob(full, boxRect(boxes[b], fullBounds), s.normalize)
			candidateDone[b] = true
		}
		if !candidateOK[b] {
			return 0, nil
		}
		return s.scorer.Score(candidates[b], glyphs[g])
	}
	return Assign(len(s.offsets), len(boxes), s.threshold, score)
}

func decodeImage(encoded, what string) (gocv.Mat, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return gocv.Mat{}, services.Wrap(services.ErrRemote, component, "decode "+what, "invalid base64", err)
	}
	img, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, services.Wrap(services.ErrRemote, component, "decode "+what, "invalid image", err)
	}
	if img.Empty() {
		_ = img.Close()
		return gocv.Mat{}, services.Wrap(services.ErrRemote, component, "decode "+what, "empty image", nil)
	}
	return img, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, services.ErrCaptchaRejected):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
