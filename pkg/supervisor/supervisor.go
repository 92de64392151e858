// Package supervisor implements the core pipeline (spec.md §2 C6, §4.6):
// context assembly, generation, coherence checking against active
// commitments, bubble formatting, safety annotation, and persist+enqueue
// for review. It is grounded on the teacher's pkg/agent controller, which
// runs the same shape of multi-stage LLM pipeline (assemble context →
// invoke model → post-process → persist) for its alert-investigation flow.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitlbot/warden/pkg/broker"
	"github.com/hitlbot/warden/pkg/config"
	"github.com/hitlbot/warden/pkg/llmrouter"
	"github.com/hitlbot/warden/pkg/memory"
	"github.com/hitlbot/warden/pkg/metrics"
	"github.com/hitlbot/warden/pkg/models"
	"github.com/hitlbot/warden/pkg/review"
	"github.com/hitlbot/warden/pkg/safety"
	"github.com/hitlbot/warden/pkg/store"
	"github.com/hitlbot/warden/pkg/werrors"
)

const (
	commitmentHorizon = 7 * 24 * time.Hour
	historyWindow     = 6
)

// Persona configures the generator and coherence-checker system prompts.
// A real deployment supplies these from deployment-specific configuration;
// Warden ships sane defaults via DefaultPersona.
type Persona struct {
	GeneratorSystemPrompt string
	RefinerPersona        string
	RefinerInstructions   string
	BubbleInstructions    string
}

// DefaultPersona returns a minimal, generic persona suitable for tests and
// as a starting point for real deployments.
func DefaultPersona() Persona {
	return Persona{
		GeneratorSystemPrompt: "You are a warm, attentive conversational partner. Reply naturally to the user's latest message, using the conversation history for context.",
		RefinerPersona:        "You check a drafted reply against promises already made to this user.",
		RefinerInstructions: "Given the draft reply and the list of active commitments, respond with exactly three lines:\n" +
			"STATUS: ok | availability_conflict | identity_conflict\n" +
			"SPAN: <verbatim text of the draft that conflicts, or NONE>\n" +
			"REPLACEMENT: <replacement text for that span, or NONE>",
		BubbleInstructions: "Rewrite the draft as a sequence of casual message bubbles separated by the literal token [BUBBLE], preserving meaning, without conversing with it. Output nothing but the bubbles and the separator token.",
	}
}

// Supervisor runs the full generation pipeline for one ProcessingUnit.
type Supervisor struct {
	store   *store.Store
	broker  *broker.Broker
	memory  *memory.Manager
	router  *llmrouter.Router
	safety  *safety.Filter
	cfg     config.Config
	persona Persona
	logger  *slog.Logger
}

// New creates a Supervisor.
func New(s *store.Store, b *broker.Broker, m *memory.Manager, r *llmrouter.Router, sf *safety.Filter, cfg config.Config, persona Persona, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{store: s, broker: b, memory: m, router: r, safety: sf, cfg: cfg, persona: persona, logger: logger}
}

// Submit implements activity.Sink: the Activity Tracker hands off a
// debounced ProcessingUnit here.
func (s *Supervisor) Submit(ctx context.Context, unit models.ProcessingUnit) {
	if err := s.Process(ctx, unit); err != nil {
		s.logger.Error("supervisor: process failed", "user_id", unit.UserID, "error", err)
	}
}

// Process runs one ProcessingUnit through the full pipeline (spec.md
// §4.6): idempotence check, per-user mutual exclusion, context assembly,
// generation, coherence check with one identity_conflict retry, bubble
// formatting, safety annotation, and persist+enqueue.
func (s *Supervisor) Process(ctx context.Context, unit models.ProcessingUnit) error {
	if dup, err := s.isDuplicate(ctx, unit); err != nil {
		return err
	} else if dup {
		return werrors.ErrDuplicateIngest
	}

	owner := uuid.NewString()
	ok, err := s.broker.AcquireUserMutex(ctx, unit.UserID, owner)
	if err != nil {
		return werrors.Wrap(werrors.KindTransientExternal, "acquire user mutex", err)
	}
	if !ok {
		return werrors.New(werrors.KindConflict, "user already has a pipeline run in flight")
	}
	defer func() { _ = s.broker.ReleaseUserMutex(ctx, unit.UserID, owner) }()

	s.memory.Append(ctx, unit.UserID, memory.RoleUser, unit.CombinedText)

	started := time.Now()
	interaction, err := s.runPipeline(ctx, unit)
	metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return err
	}

	if err := s.store.Interactions.Create(ctx, interaction); err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return werrors.Wrap(werrors.KindTransientExternal, "persist interaction", err)
	}

	user, err := s.store.Users.Get(ctx, unit.UserID)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return werrors.Wrap(werrors.KindTransientExternal, "load user for priority scoring", err)
	}
	priority := review.Priority(interaction.CreatedAt, user.LifetimeValue, interaction.Safety.RiskScore)
	sequence, err := s.broker.NextReviewSequence(ctx)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return werrors.Wrap(werrors.KindTransientExternal, "allocate review sequence", err)
	}
	if err := s.broker.EnqueueReview(ctx, interaction.ID, priority, sequence); err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		return werrors.Wrap(werrors.KindTransientExternal, "enqueue review", err)
	}

	metrics.PipelineRuns.WithLabelValues("success").Inc()
	return nil
}

func (s *Supervisor) isDuplicate(ctx context.Context, unit models.ProcessingUnit) (bool, error) {
	for _, id := range unit.PlatformMsgIDs {
		exists, err := s.store.Interactions.ExistsForPlatformMsgID(ctx, id)
		if err != nil {
			return false, werrors.Wrap(werrors.KindTransientExternal, "idempotence check", err)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// runPipeline executes generation → coherence check → formatting → safety,
// retrying generation once when the coherence check reports identity_conflict
// (spec.md §4.6 step 3). Errors from generation or the coherence check,
// transient ones included, are returned to the caller without a retry here.
func (s *Supervisor) runPipeline(ctx context.Context, unit models.ProcessingUnit) (*models.Interaction, error) {
	var (
		draft    string
		genRes   llmrouter.Result
		coherence *models.CoherenceRecord
		refRes   llmrouter.Result
		attempts int
	)

	const maxAttempts = 2 // one identity_conflict retry (spec.md §4.6)

	for attempts = 0; attempts < maxAttempts; attempts++ {
		var err error
		draft, genRes, err = s.generate(ctx, unit)
		if err != nil {
			return nil, err
		}

		coherence, draft, refRes, err = s.checkCoherence(ctx, unit.UserID, draft)
		if err != nil {
			return nil, err
		}

		if coherence.Status != models.CoherenceIdentityConflict {
			break
		}
		s.logger.Warn("supervisor: identity conflict detected, retrying generation", "user_id", unit.UserID, "attempt", attempts)
	}

	if coherence.Status == models.CoherenceIdentityConflict {
		return nil, werrors.New(werrors.KindFatal, "identity conflict persisted past retry budget")
	}

	bubbles, bubbleRes, err := s.formatBubbles(ctx, unit.UserID, draft)
	if err != nil {
		return nil, err
	}
	refRes = mergeResults(refRes, bubbleRes)

	bubbleTexts := make([]string, len(bubbles))
	for i, b := range bubbles {
		bubbleTexts[i] = b.Text
	}
	annotation := s.safety.AnalyzeAll(bubbleTexts)

	now := time.Now()
	in := &models.Interaction{
		ID:              uuid.NewString(),
		UserID:          unit.UserID,
		PlatformMsgIDs:  unit.PlatformMsgIDs,
		PlatformTS:      unit.PlatformTS,
		IngestTS:        unit.ReceivedAt,
		RawText:         unit.CombinedText,
		GenerationDraft: draft,
		RefinedBubbles:  bubbles,
		FinalBubbles:    bubbles,
		Safety: models.SafetyAnnotation{
			RiskScore: annotation.RiskScore,
			Flags:     annotation.Flags,
		},
		ReviewStatus: models.ReviewStatusPending,
		GenerationCost: models.StageCost{
			ModelUsed: genRes.ModelUsed, TokensIn: genRes.TokensIn, TokensOut: genRes.TokensOut,
			CachedTokens: genRes.CachedTokens, CostUSD: genRes.Cost,
		},
		RefinementCost: models.StageCost{
			ModelUsed: refRes.ModelUsed, TokensIn: refRes.TokensIn, TokensOut: refRes.TokensOut,
			CachedTokens: refRes.CachedTokens, CostUSD: refRes.Cost,
		},
		IsRecovered: unit.IsRecovered,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if coherence.Status != models.CoherenceOK {
		coherence.ID = uuid.NewString()
		coherence.InteractionID = in.ID
		if err := s.store.Coherence.Create(ctx, coherence); err != nil {
			s.logger.Error("supervisor: persist coherence record failed", "interaction_id", in.ID, "error", err)
		}
	}

	return in, nil
}

func (s *Supervisor) generate(ctx context.Context, unit models.ProcessingUnit) (string, llmrouter.Result, error) {
	messages := []llmrouter.Message{{Role: "system", Content: s.persona.GeneratorSystemPrompt}}
	if summary := s.memory.Summary(ctx, unit.UserID); summary != "" {
		messages = append(messages, llmrouter.Message{Role: "system", Content: summary})
	}
	for _, e := range s.memory.Recent(ctx, unit.UserID, historyWindow) {
		role := "user"
		if e.Role == memory.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, llmrouter.Message{Role: role, Content: e.Text})
	}
	messages = append(messages, llmrouter.Message{Role: "user", Content: unit.CombinedText})

	res, err := s.router.Generate(ctx, messages)
	if err != nil {
		return "", llmrouter.Result{}, err
	}
	return res.Text, res, nil
}

// checkCoherence runs the refiner role with a dedicated directive comparing
// the draft against active commitments, using the stable-prefix builder so
// the refiner call stays prompt-cache-eligible (spec.md §4.5, §4.6 step 3).
func (s *Supervisor) checkCoherence(ctx context.Context, userID, draft string) (*models.CoherenceRecord, string, llmrouter.Result, error) {
	commitments, err := s.store.Commitments.ActiveWithin(ctx, userID, commitmentHorizon)
	if err != nil {
		return nil, draft, llmrouter.Result{}, werrors.Wrap(werrors.KindTransientExternal, "load active commitments", err)
	}

	builder := llmrouter.StablePrefixBuilder{Persona: s.persona.RefinerPersona, Instructions: s.persona.RefinerInstructions}
	summary := s.memory.Summary(ctx, userID)

	var cb strings.Builder
	cb.WriteString("DRAFT:\n")
	cb.WriteString(draft)
	cb.WriteString("\n\nACTIVE COMMITMENTS:\n")
	if len(commitments) == 0 {
		cb.WriteString("(none)")
	}
	for _, c := range commitments {
		fmt.Fprintf(&cb, "- %s (target %s)\n", c.Text, c.TargetTS.Format(time.RFC3339))
	}

	messages := builder.BuildRefinerMessages(summary, llmrouter.Message{Role: "user", Content: cb.String()})

	res, err := s.router.Refine(ctx, messages)
	if err != nil {
		if werrors.Is(err, werrors.KindMalformedLLMOutput) {
			// Best-effort degrade: treat as coherent rather than fail the
			// whole pipeline over an unparsable checker response.
			s.logger.Warn("supervisor: coherence check produced malformed output, treating as ok", "user_id", userID)
			return &models.CoherenceRecord{Status: models.CoherenceOK}, draft, res, nil
		}
		return nil, draft, llmrouter.Result{}, err
	}

	record, revised := parseCoherenceResponse(res.Text, draft)
	return record, revised, res, nil
}

// parseCoherenceResponse reads the three-line STATUS/SPAN/REPLACEMENT
// format requested of the refiner and applies any replacement to the draft.
func parseCoherenceResponse(text, draft string) (*models.CoherenceRecord, string) {
	status := models.CoherenceOK
	var span, replacement string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "STATUS:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "STATUS:"))
			switch v {
			case string(models.CoherenceAvailabilityConflict):
				status = models.CoherenceAvailabilityConflict
			case string(models.CoherenceIdentityConflict):
				status = models.CoherenceIdentityConflict
			default:
				status = models.CoherenceOK
			}
		case strings.HasPrefix(line, "SPAN:"):
			span = strings.TrimSpace(strings.TrimPrefix(line, "SPAN:"))
		case strings.HasPrefix(line, "REPLACEMENT:"):
			replacement = strings.TrimSpace(strings.TrimPrefix(line, "REPLACEMENT:"))
		}
	}

	revised := draft
	if status == models.CoherenceAvailabilityConflict && span != "" && span != "NONE" && replacement != "" && replacement != "NONE" {
		revised = strings.ReplaceAll(draft, span, replacement)
	}

	return &models.CoherenceRecord{Status: status, OriginalSpan: span, ReplacementSpan: replacement}, revised
}

// formatBubbles invokes the refiner role a second time (spec.md §4.6 step
// 4), with a distinct bubble-formatting directive but the same
// stable-prefix layout used by the coherence check, asking it to rewrite
// the draft as bubbles separated by the literal token [BUBBLE]. Degrades to
// a single bubble holding the whole draft on malformed output rather than
// failing the pipeline.
func (s *Supervisor) formatBubbles(ctx context.Context, userID, draft string) ([]models.Bubble, llmrouter.Result, error) {
	builder := llmrouter.StablePrefixBuilder{Persona: s.persona.RefinerPersona, Instructions: s.persona.BubbleInstructions}
	summary := s.memory.Summary(ctx, userID)
	messages := builder.BuildRefinerMessages(summary, llmrouter.Message{Role: "user", Content: draft})

	res, err := s.router.Refine(ctx, messages)
	if err != nil {
		if werrors.Is(err, werrors.KindMalformedLLMOutput) {
			s.logger.Warn("supervisor: bubble formatting produced malformed output, using raw draft", "user_id", userID)
			return []models.Bubble{{Text: strings.TrimSpace(draft)}}, res, nil
		}
		return nil, llmrouter.Result{}, err
	}

	return parseBubbles(res.Text), res, nil
}

// parseBubbles splits the refiner's response on the literal [BUBBLE] token,
// trims whitespace, and discards empty segments (spec.md §4.6 step 4). If
// zero segments result, the whole refined text is treated as one bubble.
func parseBubbles(text string) []models.Bubble {
	var bubbles []models.Bubble
	for _, seg := range strings.Split(text, "[BUBBLE]") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		bubbles = append(bubbles, models.Bubble{Text: seg})
	}
	if len(bubbles) == 0 {
		bubbles = append(bubbles, models.Bubble{Text: strings.TrimSpace(text)})
	}
	return bubbles
}

// mergeResults sums the token/cost accounting of two refiner-role calls
// (coherence check + bubble formatting) into one StageCost-shaped result,
// since spec.md §4.6 models a single RefinementCost per interaction.
func mergeResults(a, b llmrouter.Result) llmrouter.Result {
	model := b.ModelUsed
	if model == "" {
		model = a.ModelUsed
	}
	return llmrouter.Result{
		ModelUsed:    model,
		TokensIn:     a.TokensIn + b.TokensIn,
		TokensOut:    a.TokensOut + b.TokensOut,
		CachedTokens: a.CachedTokens + b.CachedTokens,
		Cost:         a.Cost + b.Cost,
	}
}
