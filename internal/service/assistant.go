// README: Assistant runs one conversational turn end to end under the session lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"novobot/internal/ai"
	"novobot/internal/keylock"
	"novobot/internal/modules/booking"
	"novobot/internal/modules/dialogue"
	"novobot/internal/modules/nlu"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/pricing"
	"novobot/internal/modules/response"
	"novobot/internal/modules/session"
	"novobot/internal/modules/transcript"
	"novobot/internal/modules/validation"
	"novobot/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// DefaultRephraseTimeout bounds the optional generative rewording of a reply.
const DefaultRephraseTimeout = 2 * time.Second

type Preferences interface {
	Suggest(ctx context.Context, phone string, slots dialogue.SlotSet) ([]preference.Suggestion, error)
	Learn(ctx context.Context, phone string, slots dialogue.SlotSet, outcome preference.Outcome) (preference.Profile, error)
}

type Bookings interface {
	Record(ctx context.Context, cmd booking.RecordCommand) (*booking.Booking, error)
}

// Quota meters generative rephrasing per phone.
type Quota interface {
	UseToken(ctx context.Context, uid string) error
}

// Deps wires an Assistant. Preferences, Bookings, Rephraser, Quota and
// Transcript are optional.
type Deps struct {
	Sessions        session.Store
	Locks           *keylock.Locker
	Validator       *validation.Service
	Pricing         *pricing.Service
	Composer        *response.Composer
	Preferences     Preferences
	Bookings        Bookings
	Rephraser       ai.Rephraser
	Quota           Quota
	Transcript      transcript.Store
	RephraseTimeout time.Duration
	Location        *time.Location
	Log             *zap.Logger
}

type Assistant struct {
	sessions   session.Store
	locks      *keylock.Locker
	extractor  *nlu.Extractor
	classifier *nlu.Classifier
	validator  *validation.Service
	pricing    *pricing.Service
	composer   *response.Composer
	prefs      Preferences
	bookings   Bookings
	rephraser  ai.Rephraser
	quota      Quota
	turns      transcript.Store
	timeout    time.Duration
	loc        *time.Location
	log        *zap.Logger
	now        func() time.Time
}

func NewAssistant(d Deps) *Assistant {
	a := &Assistant{
		sessions:   d.Sessions,
		locks:      d.Locks,
		extractor:  nlu.NewExtractor(),
		classifier: nlu.NewClassifier(),
		validator:  d.Validator,
		pricing:    d.Pricing,
		composer:   d.Composer,
		prefs:      d.Preferences,
		bookings:   d.Bookings,
		rephraser:  d.Rephraser,
		quota:      d.Quota,
		turns:      d.Transcript,
		timeout:    d.RephraseTimeout,
		loc:        d.Location,
		log:        d.Log,
		now:        time.Now,
	}
	if a.locks == nil {
		a.locks = keylock.New()
	}
	if a.timeout <= 0 {
		a.timeout = DefaultRephraseTimeout
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	return a
}

type TurnInput struct {
	Phone     string
	SessionID string
	Text      string
}

// TurnOutput is the reply plus everything the turn decided, for callers that
// want more than the text.
type TurnOutput struct {
	Reply          string                  `json:"reply"`
	State          dialogue.State          `json:"state"`
	Slots          dialogue.SlotSet        `json:"slots"`
	Finalized      *dialogue.SlotSet       `json:"finalized,omitempty"`
	Intent         nlu.Intent              `json:"intent"`
	Validation     validation.Result       `json:"validation"`
	Estimate       *pricing.Estimate       `json:"estimate,omitempty"`
	Suggestions    []preference.Suggestion `json:"suggestions,omitempty"`
	BookingID      types.ID                `json:"booking_id,omitempty"`
	ConversationID string                  `json:"conversation_id"`
	Rephrased      bool                    `json:"rephrased"`
}

func failure(reply string) TurnOutput {
	return TurnOutput{Reply: reply, State: dialogue.StateError}
}

// HandleTurn processes one utterance. It always produces a reply: storage
// failures, lost version races and panics surface as an Error-state output,
// never as a returned error. Only malformed input returns an error.
func (a *Assistant) HandleTurn(ctx context.Context, in TurnInput) (out TurnOutput, err error) {
	if strings.TrimSpace(in.Phone) == "" {
		return TurnOutput{}, ErrBadRequest
	}
	key := session.Key(in.Phone, in.SessionID)
	unlock := a.locks.Lock(key)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("turn panicked", zap.String("session", key), zap.Any("panic", r), zap.Stack("stack"))
			out, err = failure(response.TechError), nil
		}
	}()

	for attempt := 0; attempt < 2; attempt++ {
		out, err = a.turn(ctx, key, in)
		if !errors.Is(err, session.ErrConflict) {
			break
		}
		a.log.Warn("session version conflict", zap.String("session", key), zap.Int("attempt", attempt+1))
	}
	switch {
	case errors.Is(err, session.ErrConflict):
		return failure(response.TryAgain), nil
	case err != nil:
		a.log.Error("turn failed", zap.String("session", key), zap.Error(err))
		return failure(response.TechError), nil
	}
	return out, nil
}

func (a *Assistant) turn(ctx context.Context, key string, in TurnInput) (TurnOutput, error) {
	now := a.now().In(a.loc)
	sess, err := a.sessions.Get(ctx, key)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(in.Phone, in.SessionID, now)
	} else if err != nil {
		return TurnOutput{}, fmt.Errorf("load session: %w", err)
	}
	prev := sess.Slots

	ext := a.extractor.Extract(in.Text)
	intent := a.classifier.Classify(in.Text)
	entities := ext.Entities

	var declined nlu.Slot
	if p := sess.Pending; p != nil && !prev.Has(p.Slot) {
		switch {
		case intent.Kind == nlu.IntentConfirm && len(entities) == 0:
			entities = append(entities, pendingEntity(*p))
		case (intent.Kind == nlu.IntentCancel || intent.Kind == nlu.IntentUnknown) && nlu.IsDecline(in.Text):
			declined = p.Slot
			intent = nlu.Intent{Kind: nlu.IntentUnknown}
		}
	}

	res := dialogue.Transition(prev, entities, intent)
	a.log.Debug("turn classified",
		zap.String("session", key),
		zap.String("intent", string(intent.Kind)),
		zap.Float64("confidence", intent.Confidence),
		zap.Int("entities", len(entities)),
		zap.String("state", string(res.State)),
	)

	var (
		val         = validation.Result{IsValid: true}
		est         *pricing.Estimate
		suggestions []preference.Suggestion
	)
	if collecting(res.State) {
		est = a.estimate(ctx, res.Slots, now)
		var total *types.Money
		if est != nil {
			total = &est.Total
		}
		val = a.validator.Validate(ctx, validation.Input{
			Slots:    res.Slots,
			Changed:  res.Changed,
			Stops:    res.StopsAdded,
			Rejected: ext.Rejected,
			Estimate: total,
			Now:      now,
		})
		if failed := val.FailedSlots(); len(failed) > 0 {
			res = rollback(res, prev, failed)
			est = a.estimate(ctx, res.Slots, now)
		}
		if res.State != dialogue.StateReadyToConfirm && a.prefs != nil {
			suggestions, err = a.prefs.Suggest(ctx, in.Phone, res.Slots)
			if err != nil {
				a.log.Warn("preference suggestions unavailable", zap.String("phone", in.Phone), zap.Error(err))
			}
			suggestions = withoutSlot(suggestions, declined)
		}
	}
	if res.State == dialogue.StateCompleted && res.Finalized != nil {
		est = a.estimate(ctx, *res.Finalized, now)
	}

	// Notes about a slot the turn overwrote no longer describe the trip.
	kept := dropNotes(sess.Warnings, touched(res))
	warnings := appendNotes(kept, dropNotes(val.Notes, val.FailedSlots())...)
	carried := noteTexts(kept)
	if res.State == dialogue.StateCompleted {
		carried = noteTexts(warnings)
	}

	cin := response.Input{
		State:            res.State,
		Slots:            res.Slots,
		Finalized:        res.Finalized,
		Changed:          res.Changed,
		StopsAdded:       res.StopsAdded,
		Intent:           intent,
		Validation:       val,
		Estimate:         est,
		Suggestions:      suggestions,
		AmbiguousService: res.AmbiguousService,
		Carried:          carried,
	}
	if intent.Has(nlu.IntentAskQuestion) {
		cin.Topic = nlu.QuestionTopic(in.Text)
	}
	reply := a.composer.Compose(cin)
	reply, rephrased := a.rephrase(ctx, in, reply, res)

	out := TurnOutput{
		Reply:          reply,
		State:          res.State,
		Slots:          res.Slots,
		Finalized:      res.Finalized,
		Intent:         intent,
		Validation:     val,
		Estimate:       est,
		Suggestions:    suggestions,
		ConversationID: sess.ConversationID,
		Rephrased:      rephrased,
	}

	before := sess
	sess.Slots = res.Slots
	sess.State = res.State.Settled()
	sess.Warnings = warnings
	sess.Pending = pendingFor(res.Slots, suggestions)
	sess.LastActive = now
	sess.Turns++
	if res.State == dialogue.StateCompleted || res.State == dialogue.StateCancelled {
		sess = sess.Restart()
	}
	if res.State == dialogue.StateHelp || res.State == dialogue.StateGreeting {
		sess.Pending = before.Pending
	}

	saved, err := a.sessions.Put(ctx, sess)
	if err != nil {
		return TurnOutput{}, err
	}

	switch res.State {
	case dialogue.StateCompleted:
		b, err := a.record(ctx, before, *res.Finalized, est, now)
		if err != nil {
			a.log.Error("record booking", zap.String("phone", in.Phone), zap.Error(err))
			// Put the trip back so the user can confirm again.
			before.Version = saved.Version
			before.Slots = *res.Finalized
			before.State = dialogue.StateReadyToConfirm
			before.LastActive = now
			before.Turns = saved.Turns
			if _, perr := a.sessions.Put(ctx, before); perr != nil {
				a.log.Error("restore session after booking failure", zap.String("session", key), zap.Error(perr))
			}
			fail := failure(response.TechError)
			a.logTurn(ctx, before.ConversationID, saved.Turns, in, intent, fail, now)
			return fail, nil
		}
		if b != nil {
			out.BookingID = b.ID
		}
		a.learn(ctx, in.Phone, *res.Finalized, preference.OutcomeCompleted)
	case dialogue.StateCancelled:
		if res.Finalized != nil {
			a.learn(ctx, in.Phone, *res.Finalized, preference.OutcomeCancelled)
		}
	}
	a.logTurn(ctx, before.ConversationID, saved.Turns, in, intent, out, now)
	return out, nil
}

// logTurn appends the turn to the transcript of the conversation it belonged
// to, which is the loaded one even when the turn restarted the session.
func (a *Assistant) logTurn(ctx context.Context, conversationID string, seq int, in TurnInput, intent nlu.Intent, out TurnOutput, now time.Time) {
	if a.turns == nil {
		return
	}
	err := a.turns.Append(ctx, transcript.Turn{
		ConversationID: conversationID,
		Seq:            seq,
		Phone:          in.Phone,
		UserText:       in.Text,
		Reply:          out.Reply,
		Intent:         string(intent.Kind),
		Mood:           string(intent.Mood),
		State:          string(out.State),
		CreatedAt:      now,
	})
	if err != nil {
		a.log.Warn("append transcript", zap.String("conversation", conversationID), zap.Error(err))
	}
}

func (a *Assistant) estimate(ctx context.Context, s dialogue.SlotSet, now time.Time) *pricing.Estimate {
	if s.Origin == "" || s.Destination == "" {
		return nil
	}
	est, err := a.pricing.Estimate(ctx, pricing.PricingRequest{
		Origin:      s.Origin,
		Destination: s.Destination,
		ServiceType: s.ServiceType,
		Specials:    s.SpecialServices,
		PickupAt:    pickupAt(s, now),
	})
	if err != nil {
		a.log.Warn("tariff estimate failed", zap.Error(err))
		return nil
	}
	return &est
}

func (a *Assistant) record(ctx context.Context, sess session.Session, trip dialogue.SlotSet, est *pricing.Estimate, now time.Time) (*booking.Booking, error) {
	if a.bookings == nil {
		return nil, nil
	}
	var at *time.Time
	if trip.ServiceType == nlu.ServiceReservation && trip.Time != nil {
		t := validation.PickupAt(*trip.Time, now)
		at = &t
	}
	return a.bookings.Record(ctx, booking.RecordCommand{
		Phone:          sess.Phone,
		ConversationID: sess.ConversationID,
		Slots:          trip,
		Estimate:       est,
		PickupAt:       at,
	})
}

func (a *Assistant) learn(ctx context.Context, phone string, trip dialogue.SlotSet, outcome preference.Outcome) {
	if a.prefs == nil {
		return
	}
	if _, err := a.prefs.Learn(ctx, phone, trip, outcome); err != nil {
		a.log.Warn("learn preferences", zap.String("phone", phone), zap.Error(err))
	}
}

// rephrase rewords reply when a provider is configured, the phone has quota
// left and the result keeps every fact. Any failure keeps the template text.
func (a *Assistant) rephrase(ctx context.Context, in TurnInput, reply string, res dialogue.Result) (string, bool) {
	if a.rephraser == nil || res.State == dialogue.StateGreeting {
		return reply, false
	}
	if a.quota != nil {
		if err := a.quota.UseToken(ctx, in.Phone); err != nil {
			a.log.Debug("rephrase skipped", zap.String("phone", in.Phone), zap.Error(err))
			return reply, false
		}
	}
	trip := res.Slots
	if res.Finalized != nil {
		trip = *res.Finalized
	}
	values := append([]string{trip.Origin, trip.Destination, trip.PaymentMethod}, trip.IntermediateStops...)
	if trip.Time != nil {
		values = append(values, trip.Time.String())
	}
	facts := ai.FactsOf(reply, values...)

	rctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.rephraser.Rephrase(rctx, ai.Request{
		Reply:     reply,
		Utterance: in.Text,
		State:     string(res.State),
		Facts:     facts,
	})
	if err != nil {
		a.log.Warn("rephrase failed", zap.Error(err))
		return reply, false
	}
	if !ai.KeepsFacts(reply, out, facts) {
		a.log.Warn("rephrase dropped facts; using template")
		return reply, false
	}
	return out, true
}

func collecting(s dialogue.State) bool {
	switch s {
	case dialogue.StateInitial, dialogue.StateGreeting, dialogue.StateHelp,
		dialogue.StateCompleted, dialogue.StateCancelled, dialogue.StateError:
		return false
	}
	return true
}

// rollback restores hard-errored slots to their previous value and re-derives the state.
func rollback(res dialogue.Result, prev dialogue.SlotSet, failed []nlu.Slot) dialogue.Result {
	bad := map[nlu.Slot]bool{}
	for _, slot := range failed {
		res.Slots = res.Slots.Restore(prev, slot)
		bad[slot] = true
	}
	kept := res.Changed[:0:0]
	for _, slot := range res.Changed {
		if !bad[slot] {
			kept = append(kept, slot)
		}
	}
	res.Changed = kept
	if bad[nlu.SlotStop] {
		res.StopsAdded = nil
	}
	res.State = dialogue.Derive(res.Slots)
	return res
}

func pickupAt(s dialogue.SlotSet, now time.Time) time.Time {
	if s.ServiceType == nlu.ServiceReservation && s.Time != nil {
		return validation.PickupAt(*s.Time, now)
	}
	return now
}

func pendingEntity(p session.Pending) nlu.Entity {
	switch p.Slot {
	case nlu.SlotOrigin:
		return nlu.AddressEntity{Value: p.Value, Role: nlu.RoleOrigin, Conf: 0.9}
	case nlu.SlotDestination:
		return nlu.AddressEntity{Value: p.Value, Role: nlu.RoleDestination, Conf: 0.9}
	default:
		return nlu.PaymentEntity{Method: p.Value, Known: true, Conf: 0.9}
	}
}

// pendingFor remembers the suggestion the reply offered, if any.
func pendingFor(slots dialogue.SlotSet, suggestions []preference.Suggestion) *session.Pending {
	next, ok := slots.NextMissing()
	if !ok {
		return nil
	}
	for _, sg := range suggestions {
		if sg.Slot == next {
			return &session.Pending{Slot: sg.Slot, Value: sg.Value}
		}
	}
	return nil
}

func withoutSlot(list []preference.Suggestion, slot nlu.Slot) []preference.Suggestion {
	if slot == "" {
		return list
	}
	out := list[:0:0]
	for _, sg := range list {
		if sg.Slot != slot {
			out = append(out, sg)
		}
	}
	return out
}

// touched lists the slots whose earlier notes this turn invalidates.
func touched(res dialogue.Result) []nlu.Slot {
	out := append([]nlu.Slot(nil), res.Changed...)
	for _, slot := range res.Changed {
		// Time notes depend on the service type too.
		if slot == nlu.SlotServiceType {
			out = append(out, nlu.SlotTime)
		}
	}
	return out
}

func dropNotes(notes []validation.Note, slots []nlu.Slot) []validation.Note {
	if len(slots) == 0 {
		return notes
	}
	drop := map[nlu.Slot]bool{}
	for _, slot := range slots {
		drop[slot] = true
	}
	out := notes[:0:0]
	for _, n := range notes {
		if !drop[n.Slot] {
			out = append(out, n)
		}
	}
	return out
}

func appendNotes(list []validation.Note, items ...validation.Note) []validation.Note {
	out := append([]validation.Note(nil), list...)
	for _, it := range items {
		dup := false
		for _, v := range out {
			if v == it {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, it)
		}
	}
	return out
}

func noteTexts(notes []validation.Note) []string {
	var out []string
	for _, n := range notes {
		out = append(out, n.Text)
	}
	return out
}
