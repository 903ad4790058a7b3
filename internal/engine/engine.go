package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meetcast/internal/capability"
	"meetcast/internal/config"
	"meetcast/internal/conflict"
	"meetcast/internal/decision"
	"meetcast/internal/domain"
	"meetcast/internal/metrics"
	"meetcast/internal/parse"
	"meetcast/internal/retry"
	"meetcast/internal/validate"
	"meetcast/internal/weather"
)

// Journal records finished runs. Recording failures are logged, never returned
// to the caller.
type Journal interface {
	Record(ctx context.Context, run domain.Run) error
}

type Engine struct {
	Weather  capability.Weather
	Calendar capability.Calendar
	Config   *config.Config
	Journal  Journal
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Now      func() time.Time
}

func New(w capability.Weather, c capability.Calendar, cfg *config.Config) Engine {
	return Engine{
		Weather:  w,
		Calendar: c,
		Config:   cfg,
		Log:      zerolog.Nop(),
		Tracer:   otel.Tracer("meetcast/engine"),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.Tracer("meetcast/engine")
}

// policy allows at most one retry per capability call.
func (e Engine) policy() retry.Policy {
	p := e.config().Pipeline
	retries := uint64(0)
	if p.MaxRetries > 0 {
		retries = 1
	}
	return retry.Policy{
		Timeout:    p.CallTimeout.Std(),
		Delay:      p.RetryDelay.Std(),
		MaxRetries: retries,
	}
}

func (e Engine) location() *time.Location {
	loc, err := e.config().Pipeline.Location()
	if err != nil {
		return time.Local
	}
	return loc
}

// Run evaluates one scheduling request. answer, when set, is the caller's reply
// to a previous clarification_needed result for the same input. Run always
// returns a summary; failures are reported through its status.
func (e Engine) Run(ctx context.Context, input string, answer *string) (summary domain.EventSummary) {
	started := time.Now()
	runID := uuid.NewString()
	log := e.Log.With().Str("run_id", runID).Logger()

	timeout := e.config().Pipeline.RequestTimeout.Std()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqCtx, span := e.tracer().Start(reqCtx, "pipeline.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	s := State{
		Stage:        StageExtracting,
		OriginalText: input,
		FollowUp:     answer,
		Now:          e.now().In(e.location()),
	}
	s = s.to(StageExtracting, s.Now, "")

	defer func() {
		if r := recover(); r != nil {
			fault := domain.InternalFault{Stage: string(s.Stage), Err: fmt.Errorf("panic: %v", r)}
			log.Error().Stack().Err(fault).Msg("internal fault")
			s = s.fail(fault, e.now())
			summary = e.summarize(s)
		}
		summary.RunID = runID
		if summary.Status == domain.StatusError {
			span.SetStatus(codes.Error, summary.Reason)
		}
		span.SetAttributes(attribute.String("status", string(summary.Status)))
		e.finish(ctx, log, runID, started, s, summary)
	}()

	for !s.terminal() {
		prev := s.Stage
		s = e.step(reqCtx, log, s)
		if s.Stage != prev {
			log.Debug().Str("from", string(prev)).Str("to", string(s.Stage)).Msg("transition")
		}
	}
	return e.summarize(s)
}

func (e Engine) step(ctx context.Context, log zerolog.Logger, s State) State {
	ctx, span := e.tracer().Start(ctx, "stage."+string(s.Stage))
	defer span.End()

	switch s.Stage {
	case StageExtracting:
		return e.extract(s)
	case StageValidating:
		return e.validate(s)
	case StageClarifying:
		return e.clarify(s)
	case StageAssessing:
		return e.assess(ctx, log, s)
	case StageComposing:
		return e.compose(s)
	case StageFinalizing:
		return e.finalize(ctx, log, s)
	}
	return s.fail(domain.InternalFault{Stage: string(s.Stage), Err: errors.New("unknown stage")}, e.now())
}

func (e Engine) extract(s State) State {
	if s.ClarificationCount == 0 || s.FollowUp == nil {
		s.Slot, s.Missing = parse.Extract(s.OriginalText, s.Now)
	} else {
		first, _ := parse.Extract(s.OriginalText, s.Now)
		first, _ = validate.ApplyDurationDefault(first, s.OriginalText)
		var rejected []domain.Field
		for _, d := range validate.Validate(first, s.Now) {
			rejected = append(rejected, d.Field)
		}
		s.Slot, s.Missing = parse.Merge(s.OriginalText, *s.FollowUp, s.Now, rejected...)
	}
	return s.to(StageValidating, e.now(), fieldList(s.Missing))
}

func (e Engine) validate(s State) State {
	s.Slot, s.Missing = validate.ApplyDurationDefault(s.Slot, s.text())
	s.Defects = validate.Validate(s.Slot, s.Now)
	if validate.Complete(s.Missing, s.Defects) {
		return s.to(StageAssessing, e.now(), "")
	}
	if s.ClarificationCount >= 1 {
		return s.fail(domain.ExhaustedClarification{Missing: s.Missing, Defects: s.Defects}, e.now())
	}
	var gap error = domain.ExtractionGap{Fields: s.Missing}
	if len(s.Defects) > 0 {
		gap = domain.ValidationDefect{Defects: s.Defects}
	}
	return s.to(StageClarifying, e.now(), gap.Error())
}

// clarify either stops the run to ask the caller, or consumes the one follow-up
// answer and loops back to extraction.
func (e Engine) clarify(s State) State {
	if s.FollowUp == nil {
		e.Metrics.Clarification()
		s.AwaitingAnswer = true
		return s
	}
	s.ClarificationCount = 1
	return s.to(StageExtracting, e.now(), "follow-up received")
}

type outcome[T any] struct {
	value T
	err   error
}

func guard[T any](stage string, ch chan<- outcome[T], fn func() T) {
	defer func() {
		if r := recover(); r != nil {
			ch <- outcome[T]{err: domain.InternalFault{Stage: stage, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()
	ch <- outcome[T]{value: fn()}
}

// assess runs the weather and conflict checks concurrently and waits for both.
// If the request deadline passes first, the missing result is replaced by its
// degraded placeholder.
func (e Engine) assess(ctx context.Context, log zerolog.Logger, s State) State {
	cfg := e.config().Pipeline
	city, when, dur := *s.Slot.City, *s.Slot.When, *s.Slot.DurationMin
	text, now := s.text(), s.Now

	advisor := weather.Advisor{
		Weather: e.Weather,
		Policy:  e.policy(),
		Log:     log.With().Str("component", "weather").Logger(),
		Metrics: e.Metrics,
		Now:     func() time.Time { return now },
	}
	resolver := conflict.Resolver{
		Calendar:      e.Calendar,
		Policy:        e.policy(),
		ProbeBudget:   cfg.ProbeBudget,
		ProbeStep:     cfg.ProbeStep.Std(),
		MaxCandidates: cfg.MaxCandidates,
		Log:           log.With().Str("component", "conflict").Logger(),
		Metrics:       e.Metrics,
	}

	weatherCh := make(chan outcome[domain.WeatherAssessment], 1)
	conflictCh := make(chan outcome[domain.ConflictInfo], 1)
	go guard("assessing.weather", weatherCh, func() domain.WeatherAssessment {
		return advisor.Assess(ctx, city, when, text)
	})
	go guard("assessing.conflict", conflictCh, func() domain.ConflictInfo {
		return resolver.Resolve(ctx, when, dur)
	})

	var (
		wa   *domain.WeatherAssessment
		ci   *domain.ConflictInfo
		err  error
		late bool
	)
	takeWeather := func(o outcome[domain.WeatherAssessment]) {
		if o.err != nil {
			err = o.err
			return
		}
		wa = &o.value
	}
	takeConflict := func(o outcome[domain.ConflictInfo]) {
		if o.err != nil {
			err = o.err
			return
		}
		ci = &o.value
	}
	for err == nil && !late && (wa == nil || ci == nil) {
		select {
		case o := <-weatherCh:
			takeWeather(o)
		case o := <-conflictCh:
			takeConflict(o)
		case <-ctx.Done():
			late = true
		}
	}
	if late {
		// Results buffered alongside the deadline still count.
		select {
		case o := <-weatherCh:
			takeWeather(o)
		default:
		}
		select {
		case o := <-conflictCh:
			takeConflict(o)
		default:
		}
	}
	if err != nil {
		return s.fail(err, e.now())
	}
	if wa == nil || ci == nil {
		log.Warn().Err(ctx.Err()).Msg("request deadline reached during assessment")
	}
	if wa == nil {
		d := weather.Degraded()
		wa = &d
	}
	if ci == nil {
		d := conflict.Degraded()
		ci = &d
	}

	s.Weather, s.Conflict = wa, ci
	if wa.Degraded {
		e.Metrics.Degraded(capability.NameWeather)
		s = s.degraded(weather.DegradedNote)
	}
	if ci.Degraded {
		e.Metrics.Degraded(capability.NameCalendar)
		s = s.degraded(conflict.DegradedNote)
	}
	detail := fmt.Sprintf("risk=%s prob_rain=%d conflict=%t", wa.Risk, wa.ProbRain, ci.HasConflict)
	return s.to(StageComposing, e.now(), detail)
}

func (e Engine) compose(s State) State {
	d := decision.Compose(*s.Weather, *s.Conflict)
	s.Decision = &d
	return s.to(StageFinalizing, e.now(), string(d.Action))
}

// finalize creates the calendar event for a create decision. A failed creation
// keeps the decision and tells the caller to add the event by hand.
func (e Engine) finalize(ctx context.Context, log zerolog.Logger, s State) State {
	s.Final = true
	if s.Decision.Action != domain.ActionCreate {
		return s
	}
	req := capability.EventRequest{
		City:        *s.Slot.City,
		When:        *s.Slot.When,
		DurationMin: *s.Slot.DurationMin,
		Attendees:   append([]string{}, s.Slot.Attendees...),
		Notes:       s.Decision.Notes,
	}
	id, err := retry.Do(ctx, e.policy(), func(attempt int, err error, wait time.Duration) {
		e.Metrics.Call(capability.NameCalendar, "create", "retry")
		log.Debug().Err(err).Int("attempt", attempt).Msg("retrying event creation")
	}, func(ctx context.Context) (string, error) {
		return e.Calendar.Create(ctx, req)
	})
	if err != nil {
		e.Metrics.Call(capability.NameCalendar, "create", "error")
		log.Warn().Err(err).Msg("event creation failed")
		return s.note("Calendar event could not be created - please add it manually.")
	}
	e.Metrics.Call(capability.NameCalendar, "create", "ok")
	s.EventID = id
	return s
}

func (e Engine) summarize(s State) domain.EventSummary {
	sum := domain.EventSummary{Attendees: []string{}}
	if s.Slot.City != nil {
		sum.City = *s.Slot.City
	}
	if s.Slot.When != nil {
		sum.DatetimeISO = s.Slot.When.Format(time.RFC3339)
	}
	if s.Slot.DurationMin != nil {
		sum.DurationMin = *s.Slot.DurationMin
	}
	if len(s.Slot.Attendees) > 0 {
		sum.Attendees = append(sum.Attendees, s.Slot.Attendees...)
	}

	switch {
	case s.Stage == StageFailed:
		sum.Status = domain.StatusError
		sum.Action = domain.ActionFail
		sum.Reason, sum.Notes, sum.MissingFields = failureMessage(s.TerminalError, s.text())
	case s.AwaitingAnswer:
		sum.Status = domain.StatusClarificationNeeded
		sum.MissingFields = unresolved(s.Missing, s.Defects)
		sum.Reason = "More details are needed to schedule this meeting: " + strings.Join(sum.MissingFields, ", ")
		sum.Notes = strings.Join(guidance(s.Missing, s.Defects, s.text()), "\n")
	default:
		d := s.Decision
		sum.Status = domain.StatusFor(d.Action)
		sum.Action = d.Action
		sum.Reason = d.Reason
		sum.EventID = s.EventID
		if d.AdjustedWhen != nil {
			sum.DatetimeISO = d.AdjustedWhen.Format(time.RFC3339)
		}
		if d.Action == domain.ActionProposeCandidates {
			sum.Candidates = []domain.SummaryCandidate{}
			for _, c := range s.Conflict.Candidates {
				sum.Candidates = append(sum.Candidates, domain.SummaryCandidate{
					DatetimeISO:  c.Start.Format(time.RFC3339),
					AvailableMin: c.AvailableMin,
				})
			}
		}
		var notes []string
		if d.Notes != "" {
			notes = append(notes, d.Notes)
		}
		notes = append(notes, s.Notes...)
		notes = append(notes, s.DegradedNotes...)
		sum.Notes = strings.Join(notes, " ")
	}
	return sum
}

func failureMessage(err error, text string) (reason, notes string, fields []string) {
	var exhausted domain.ExhaustedClarification
	if errors.As(err, &exhausted) {
		fields = unresolved(exhausted.Missing, exhausted.Defects)
		reason = "Unable to schedule: still missing or invalid after one clarification: " + strings.Join(fields, ", ")
		return reason, strings.Join(guidance(exhausted.Missing, exhausted.Defects, text), "\n"), fields
	}
	return "Unable to schedule this request due to an internal error; please try again", "", nil
}

func unresolved(missing []domain.Field, defects []domain.Defect) []string {
	seen := map[domain.Field]bool{}
	var out []string
	for _, f := range missing {
		if !seen[f] {
			seen[f] = true
			out = append(out, string(f))
		}
	}
	for _, d := range defects {
		if !seen[d.Field] {
			seen[d.Field] = true
			out = append(out, string(d.Field))
		}
	}
	return out
}

// guidance asks only for the time when the text already names a day.
func guidance(missing []domain.Field, defects []domain.Defect, text string) []string {
	var out []string
	for _, f := range missing {
		if f == domain.FieldWhen && parse.HasDateReference(text) {
			out = append(out, validate.TimeOfDayExample)
			continue
		}
		out = append(out, validate.FormatExample(f))
	}
	for _, d := range defects {
		out = append(out, validate.DefectExample(d))
	}
	return out
}

func fieldList(fields []domain.Field) string {
	if len(fields) == 0 {
		return ""
	}
	return domain.ExtractionGap{Fields: fields}.Error()
}

func (e Engine) finish(ctx context.Context, log zerolog.Logger, runID string, started time.Time, s State, sum domain.EventSummary) {
	elapsed := time.Since(started)
	e.Metrics.Run(string(sum.Status), elapsed)

	ev := log.Info().
		Str("status", string(sum.Status)).
		Int("clarification_count", s.ClarificationCount).
		Dur("elapsed", elapsed)
	if sum.Action != "" {
		ev = ev.Str("action", string(sum.Action))
	}
	if len(s.DegradedNotes) > 0 {
		ev = ev.Strs("degraded", s.DegradedNotes)
	}
	ev.Msg("run finished")

	if e.Journal == nil {
		return
	}
	run := domain.Run{
		ID:                 runID,
		TS:                 started.UTC().Format(time.RFC3339),
		Input:              s.OriginalText,
		Answer:             s.FollowUp,
		Status:             sum.Status,
		Action:             sum.Action,
		ClarificationCount: s.ClarificationCount,
		DegradedNotes:      s.DegradedNotes,
		ElapsedMS:          elapsed.Milliseconds(),
		Summary:            sum,
		Transitions:        s.Transitions,
	}
	if err := e.Journal.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Msg("journal record failed")
	}
}
