// README: Assistant turn tests over in-memory stores (scenarios, rollback, retries, rephrase).
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"novobot/internal/ai"
	"novobot/internal/config"
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
)

const phone = "5493456123456"

var morning = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

type harness struct {
	assistant *Assistant
	sessions  session.Store
	bookings  *booking.MemoryStore
	prefStore *preference.MemoryStore
}

type option func(*Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	cfg := config.Defaults()
	log := zap.NewNop()
	h := &harness{
		sessions:  session.NewMemoryStore(),
		bookings:  booking.NewMemoryStore(),
		prefStore: preference.NewMemoryStore(),
	}
	d := Deps{
		Sessions:    h.sessions,
		Locks:       keylock.New(),
		Validator:   validation.NewService(cfg.Validation, nil, log),
		Pricing:     pricing.NewService(cfg.Tariff, nil, log),
		Composer:    response.NewComposer(cfg.Tariff, cfg.Validation),
		Preferences: preference.NewService(h.prefStore, cfg.Memory, log),
		Bookings:    booking.NewService(h.bookings, log),
		Location:    time.UTC,
		Log:         log,
	}
	for _, o := range opts {
		o(&d)
	}
	h.sessions = d.Sessions
	h.assistant = NewAssistant(d)
	h.assistant.now = func() time.Time { return morning }
	return h
}

func (h *harness) say(t *testing.T, text string) TurnOutput {
	t.Helper()
	out, err := h.assistant.HandleTurn(context.Background(), TurnInput{Phone: phone, Text: text})
	require.NoError(t, err)
	return out
}

func (h *harness) stored(t *testing.T) session.Session {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), session.Key(phone, ""))
	require.NoError(t, err)
	return s
}

func TestHandleTurn_GreetingIsBare(t *testing.T) {
	h := newHarness(t)
	out := h.say(t, "hola")
	assert.Equal(t, "Buenass", out.Reply)
	assert.Equal(t, dialogue.StateGreeting, out.State)
}

func TestHandleTurn_BookingFlow(t *testing.T) {
	h := newHarness(t)

	out := h.say(t, "necesito un taxi")
	assert.Equal(t, dialogue.StateCollectingOrigin, out.State)
	assert.True(t, strings.HasSuffix(out.Reply, "¿Desde dónde salís?"), out.Reply)

	out = h.say(t, "1 de mayo 449, concordia")
	assert.Equal(t, dialogue.StateCollectingDestination, out.State)
	assert.Contains(t, out.Reply, "salís desde 1 de mayo 449, concordia")
	assert.NotContains(t, out.Reply, "¿Desde dónde salís?")

	out = h.say(t, "diamante 2500, concordia")
	assert.Equal(t, dialogue.StateCollectingPayment, out.State)
	require.NotNil(t, out.Estimate)

	out = h.say(t, "efectivo")
	assert.Equal(t, dialogue.StateCollectingServiceType, out.State)

	out = h.say(t, "ahora")
	assert.Equal(t, dialogue.StateReadyToConfirm, out.State)
	require.NotNil(t, out.Estimate)
	assert.GreaterOrEqual(t, out.Estimate.Total.Amount, int64(500))
	assert.LessOrEqual(t, out.Estimate.Total.Amount, int64(2000))
	assert.Contains(t, out.Reply, "Origen: 1 de mayo 449, concordia")
	assert.Contains(t, out.Reply, "Destino: diamante 2500, concordia")
	assert.Contains(t, out.Reply, "Pago: efectivo")
	assert.Contains(t, out.Reply, "Servicio: Inmediato")
	assert.Equal(t, nlu.ServiceImmediate, out.Slots.ServiceType)
	conversation := out.ConversationID

	out = h.say(t, "sí")
	assert.Equal(t, dialogue.StateCompleted, out.State)
	assert.NotEmpty(t, out.BookingID)
	require.NotNil(t, out.Finalized)
	assert.Equal(t, "efectivo", out.Finalized.PaymentMethod)

	b, err := h.bookings.Get(context.Background(), out.BookingID)
	require.NoError(t, err)
	assert.Equal(t, conversation, b.ConversationID)
	assert.Nil(t, b.PickupAt)

	s := h.stored(t)
	assert.Equal(t, dialogue.StateInitial, s.State)
	assert.True(t, s.Slots.IsEmpty())
	assert.NotEqual(t, conversation, s.ConversationID)
}

func TestHandleTurn_CorrectionKeepsOtherSlots(t *testing.T) {
	h := newHarness(t)
	h.say(t, "desde guemes 800 hasta diamante 2500")

	out := h.say(t, "el origen es pellegrini 300")
	assert.Equal(t, "pellegrini 300", out.Slots.Origin)
	assert.Equal(t, "diamante 2500", out.Slots.Destination)
	assert.Equal(t, dialogue.StateCollectingPayment, out.State)
}

func TestHandleTurn_CancelResetsSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "desde guemes 800 hasta diamante 2500")

	out := h.say(t, "cancelar")
	assert.Equal(t, dialogue.StateCancelled, out.State)
	assert.Equal(t, response.Cancelled, out.Reply)

	s := h.stored(t)
	assert.Equal(t, dialogue.StateInitial, s.State)
	assert.True(t, s.Slots.IsEmpty())
	assert.Empty(t, s.Warnings)
}

func TestHandleTurn_DateStreetNamesAreAddresses(t *testing.T) {
	h := newHarness(t)
	h.say(t, "urquiza 300")

	out := h.say(t, "llevame a la 9 de julio 1200")
	assert.True(t, out.Validation.IsValid)
	assert.Equal(t, "9 de julio 1200", out.Slots.Destination)
	assert.Empty(t, out.Slots.ServiceType)
	assert.Nil(t, out.Slots.Time)
	assert.Equal(t, dialogue.StateCollectingPayment, out.State)

	h = newHarness(t)
	out = h.say(t, "voy a la 25 de mayo 300")
	assert.True(t, out.Validation.IsValid)
	assert.Equal(t, "25 de mayo 300", out.Slots.Destination)
	assert.Nil(t, out.Slots.Time)
	assert.NotContains(t, out.Reply, "no es válida")
}

func TestHandleTurn_CorrectedSlotDropsItsWarnings(t *testing.T) {
	h := newHarness(t)

	out := h.say(t, "salgo de la terminal")
	require.NotEmpty(t, out.Validation.Warnings)
	assert.Contains(t, out.Reply, "altura de la terminal")
	require.Len(t, h.stored(t).Warnings, 1)
	assert.Equal(t, nlu.SlotOrigin, h.stored(t).Warnings[0].Slot)

	out = h.say(t, "el origen es urquiza 300")
	assert.Equal(t, "urquiza 300", out.Slots.Origin)
	assert.Empty(t, h.stored(t).Warnings)

	h.say(t, "voy a diamante 2500")
	h.say(t, "efectivo")
	out = h.say(t, "ahora")
	require.Equal(t, dialogue.StateReadyToConfirm, out.State)
	assert.NotContains(t, out.Reply, "altura")

	out = h.say(t, "sí")
	require.Equal(t, dialogue.StateCompleted, out.State)
	assert.NotContains(t, out.Reply, "altura")
}

func TestHandleTurn_HardErrorRollsBackSlot(t *testing.T) {
	h := newHarness(t)
	h.say(t, "desde guemes 800 hasta diamante 2500")

	out := h.say(t, "pago con bitcoin")
	assert.False(t, out.Validation.IsValid)
	assert.Equal(t, dialogue.StateCollectingPayment, out.State)
	assert.Empty(t, out.Slots.PaymentMethod)
	assert.Contains(t, out.Reply, "bitcoin")
	assert.Contains(t, out.Reply, validation.ExamplePayment)
	assert.Empty(t, h.stored(t).Slots.PaymentMethod)
}

func TestHandleTurn_OutOfRangeTimeIsClarified(t *testing.T) {
	h := newHarness(t)
	h.say(t, "desde guemes 800 hasta diamante 2500")
	h.say(t, "efectivo")
	h.say(t, "para más tarde")

	out := h.say(t, "a las 25:00")
	assert.Equal(t, dialogue.StateCollectingTime, out.State)
	assert.Contains(t, out.Reply, "25:00")
	assert.Contains(t, out.Reply, validation.ExampleTime)
	assert.Nil(t, out.Slots.Time)
}

func TestHandleTurn_SuggestionAcceptedWithConfirm(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefStore.Put(context.Background(), preference.Profile{
		Phone:    phone,
		Origins:  []preference.RankedItem{{Item: "guemes 800", Count: 3, LastUsed: morning}},
		UseCount: 3,
	}))

	out := h.say(t, "necesito un taxi")
	assert.Contains(t, out.Reply, "¿Salís desde guemes 800?")
	require.NotNil(t, h.stored(t).Pending)

	out = h.say(t, "sí")
	assert.Equal(t, "guemes 800", out.Slots.Origin)
	assert.Equal(t, dialogue.StateCollectingDestination, out.State)
	assert.Contains(t, out.Reply, "salís desde guemes 800")
	assert.Nil(t, h.stored(t).Pending)
}

func TestHandleTurn_SuggestionDeclinedDoesNotCancel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefStore.Put(context.Background(), preference.Profile{
		Phone:    phone,
		Origins:  []preference.RankedItem{{Item: "guemes 800", Count: 3, LastUsed: morning}},
		UseCount: 3,
	}))
	h.say(t, "necesito un taxi")

	out := h.say(t, "no")
	assert.Equal(t, dialogue.StateCollectingOrigin, out.State)
	assert.True(t, strings.HasSuffix(out.Reply, "¿Desde dónde salís?"), out.Reply)
}

func TestHandleTurn_NewUserGetsNoSuggestions(t *testing.T) {
	h := newHarness(t)
	out := h.say(t, "necesito un taxi")
	assert.Empty(t, out.Suggestions)
	assert.Nil(t, h.stored(t).Pending)
}

func TestHandleTurn_CompletedTripsTeachPreferences(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.say(t, "desde guemes 800 hasta diamante 2500")
		h.say(t, "efectivo")
		h.say(t, "ahora")
		out := h.say(t, "sí")
		require.Equal(t, dialogue.StateCompleted, out.State)
	}
	p, err := h.prefStore.Get(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, 3, p.UseCount)
	top, ok := preference.Top(p.Origins)
	require.True(t, ok)
	assert.Equal(t, "guemes 800", top)

	list, err := h.bookings.ListByPhone(context.Background(), phone, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

type conflictingStore struct {
	session.Store
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingStore) Put(ctx context.Context, s session.Session) (session.Session, error) {
	c.mu.Lock()
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return session.Session{}, session.ErrConflict
	}
	c.mu.Unlock()
	return c.Store.Put(ctx, s)
}

func TestHandleTurn_RetriesOnceOnConflict(t *testing.T) {
	store := &conflictingStore{Store: session.NewMemoryStore(), conflicts: 1}
	h := newHarness(t, func(d *Deps) { d.Sessions = store })

	out := h.say(t, "desde guemes 800 hasta diamante 2500")
	assert.Equal(t, dialogue.StateCollectingPayment, out.State)
	assert.Equal(t, "guemes 800", h.stored(t).Slots.Origin)
}

func TestHandleTurn_PersistentConflictAsksToRetry(t *testing.T) {
	store := &conflictingStore{Store: session.NewMemoryStore(), conflicts: 2}
	h := newHarness(t, func(d *Deps) { d.Sessions = store })

	out := h.say(t, "desde guemes 800 hasta diamante 2500")
	assert.Equal(t, dialogue.StateError, out.State)
	assert.Equal(t, response.TryAgain, out.Reply)
}

type panickingStore struct{ session.Store }

func (panickingStore) Get(context.Context, string) (session.Session, error) {
	panic("boom")
}

func TestHandleTurn_PanicBecomesGenericReply(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Sessions = panickingStore{session.NewMemoryStore()} })
	out, err := h.assistant.HandleTurn(context.Background(), TurnInput{Phone: phone, Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateError, out.State)
	assert.Equal(t, response.TechError, out.Reply)
}

func TestHandleTurn_RejectsMissingPhone(t *testing.T) {
	h := newHarness(t)
	_, err := h.assistant.HandleTurn(context.Background(), TurnInput{Text: "hola"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

type failingBookings struct{}

func (failingBookings) Record(context.Context, booking.RecordCommand) (*booking.Booking, error) {
	return nil, errors.New("db down")
}

func TestHandleTurn_BookingFailureKeepsTripForRetry(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Bookings = failingBookings{} })
	h.say(t, "desde guemes 800 hasta diamante 2500")
	h.say(t, "efectivo")
	h.say(t, "ahora")

	out := h.say(t, "sí")
	assert.Equal(t, dialogue.StateError, out.State)
	assert.Equal(t, response.TechError, out.Reply)

	s := h.stored(t)
	assert.Equal(t, dialogue.StateReadyToConfirm, s.State)
	assert.Equal(t, "guemes 800", s.Slots.Origin)
}

func TestHandleTurn_WritesTranscriptPerConversation(t *testing.T) {
	turns := transcript.NewMemoryStore()
	h := newHarness(t, func(d *Deps) { d.Transcript = turns })
	ctx := context.Background()

	first := h.say(t, "necesito un taxi urgente")
	h.say(t, "desde guemes 800 hasta diamante 2500")
	h.say(t, "efectivo")
	done := h.say(t, "sí")
	require.Equal(t, dialogue.StateCompleted, done.State)
	next := h.say(t, "hola")
	require.NotEqual(t, first.ConversationID, next.ConversationID)

	got, err := turns.List(ctx, first.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, tr := range got {
		assert.Equal(t, i+1, tr.Seq)
		assert.Equal(t, phone, tr.Phone)
	}
	assert.Equal(t, "necesito un taxi urgente", got[0].UserText)
	assert.Equal(t, string(nlu.MoodRushed), got[0].Mood)
	assert.Equal(t, first.Reply, got[0].Reply)
	assert.Equal(t, string(dialogue.StateCompleted), got[3].State)
	assert.Equal(t, string(nlu.IntentConfirm), got[3].Intent)

	got, err = turns.List(ctx, next.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Seq)
	assert.Equal(t, "hola", got[0].UserText)
}

func TestHandleTurn_TranscriptRecordsBookingFailure(t *testing.T) {
	turns := transcript.NewMemoryStore()
	h := newHarness(t, func(d *Deps) {
		d.Bookings = failingBookings{}
		d.Transcript = turns
	})
	h.say(t, "desde guemes 800 hasta diamante 2500")
	h.say(t, "efectivo")
	conv := h.say(t, "ahora").ConversationID
	h.say(t, "sí")
	h.say(t, "sí")

	got, err := turns.List(context.Background(), conv, 0)
	require.NoError(t, err)
	require.Len(t, got, 5, "the retried confirmation gets its own row")
	assert.Equal(t, response.TechError, got[3].Reply)
	assert.Equal(t, string(dialogue.StateError), got[3].State)
	assert.Equal(t, 5, got[4].Seq)
}

type fakeRephraser struct {
	reply string
	err   error
	calls int
}

func (f *fakeRephraser) Rephrase(_ context.Context, req ai.Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeQuota struct{ err error }

func (f fakeQuota) UseToken(context.Context, string) error { return f.err }

func TestHandleTurn_Rephrase(t *testing.T) {
	tests := []struct {
		name      string
		rephraser *fakeRephraser
		quota     Quota
		want      string
		rephrased bool
	}{
		{
			name:      "keeps facts",
			rephraser: &fakeRephraser{reply: "¡Buenísimo! Salís desde guemes 800. ¿A dónde te llevamos?"},
			want:      "¡Buenísimo! Salís desde guemes 800. ¿A dónde te llevamos?",
			rephrased: true,
		},
		{
			name:      "drops address",
			rephraser: &fakeRephraser{reply: "¡Buenísimo! ¿A dónde te llevamos?"},
			want:      "Perfecto, salís desde guemes 800.\n\n¿A dónde vas?",
		},
		{
			name:      "provider error",
			rephraser: &fakeRephraser{err: context.DeadlineExceeded},
			want:      "Perfecto, salís desde guemes 800.\n\n¿A dónde vas?",
		},
		{
			name:      "quota exhausted",
			rephraser: &fakeRephraser{reply: "no debería usarse"},
			quota:     fakeQuota{err: errors.New("insufficient tokens")},
			want:      "Perfecto, salís desde guemes 800.\n\n¿A dónde vas?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(d *Deps) {
				d.Rephraser = tt.rephraser
				d.Quota = tt.quota
			})
			out := h.say(t, "estoy en guemes 800")
			assert.Equal(t, tt.want, out.Reply)
			assert.Equal(t, tt.rephrased, out.Rephrased)
		})
	}
}

func TestHandleTurn_GreetingIsNeverRephrased(t *testing.T) {
	r := &fakeRephraser{reply: "¡Hola! ¿Cómo estás?"}
	h := newHarness(t, func(d *Deps) { d.Rephraser = r })
	out := h.say(t, "hola")
	assert.Equal(t, "Buenass", out.Reply)
	assert.Zero(t, r.calls)
}

func TestHandleTurn_SerialisesConcurrentTurns(t *testing.T) {
	h := newHarness(t)
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.assistant.HandleTurn(context.Background(), TurnInput{Phone: phone, Text: "hola"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	s := h.stored(t)
	assert.Equal(t, n, s.Turns)
	assert.Equal(t, int64(n), s.Version)
}

func TestRollbackRederivesState(t *testing.T) {
	prev := dialogue.SlotSet{Origin: "guemes 800", Destination: "diamante 2500"}
	next := prev.Clone()
	next.PaymentMethod = "bitcoin"
	res := dialogue.Result{Slots: next, State: dialogue.StateCollectingServiceType, Changed: []nlu.Slot{nlu.SlotPayment}}

	got := rollback(res, prev, []nlu.Slot{nlu.SlotPayment})
	assert.Empty(t, got.Slots.PaymentMethod)
	assert.Empty(t, got.Changed)
	assert.Equal(t, dialogue.StateCollectingPayment, got.State)
}
