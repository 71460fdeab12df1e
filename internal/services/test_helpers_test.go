package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/getmentor/consultations-api/config"
	"github.com/getmentor/consultations-api/internal/cache"
	"github.com/getmentor/consultations-api/internal/engine"
	"github.com/getmentor/consultations-api/internal/models"
	"github.com/getmentor/consultations-api/internal/repository"
	"github.com/getmentor/consultations-api/internal/services"
	"github.com/getmentor/consultations-api/pkg/clock"
	"github.com/getmentor/consultations-api/pkg/idgen"
	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{
		Level:       "debug",
		Environment: "development",
	}); err != nil {
		panic(err)
	}
}

const (
	offerAcceptedURL  = "https://hooks.example/offer-accepted"
	bookingCreatedURL = "https://hooks.example/booking-created"
)

// Wednesday
var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

var (
	alice   = &models.ActorSession{ActorID: "student-alice", Role: models.RoleStudent, Name: "Alice"}
	bob     = &models.ActorSession{ActorID: "student-bob", Role: models.RoleStudent, Name: "Bob"}
	xavier  = &models.ActorSession{ActorID: "instructor-x", Role: models.RoleInstructor, Name: "Xavier"}
	yolanda = &models.ActorSession{ActorID: "instructor-y", Role: models.RoleInstructor, Name: "Yolanda"}
)

type fixture struct {
	store         *repository.MemoryStore
	cache         *cache.RequestCache
	dispatcher    *MockDispatcher
	consultations *services.ConsultationService
	bookings      *services.BookingService
}

func testConfig() *config.Config {
	return &config.Config{
		EventTriggers: config.EventTriggersConfig{
			OfferAcceptedTriggerURL:  offerAcceptedURL,
			BookingCreatedTriggerURL: bookingCreatedURL,
		},
		Booking: config.BookingConfig{Timezone: "UTC", JoinRetries: 2},
	}
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	return newFixtureWithStore(t, cfg, repository.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, cfg *config.Config, store *repository.MemoryStore) *fixture {
	t.Helper()
	return newFixtureWithStores(t, cfg, store, store, store)
}

func newFixtureWithStores(
	t *testing.T,
	cfg *config.Config,
	memory *repository.MemoryStore,
	requests repository.ConsultationStore,
	slots repository.SlotStore,
) *fixture {
	t.Helper()

	clk := clock.NewFixed(testNow)
	ids := idgen.NewSequence("id")
	requestCache := cache.NewRequestCache(time.Minute, false, requests.GetRequest)
	dispatcher := new(MockDispatcher)

	return &fixture{
		store:         memory,
		cache:         requestCache,
		dispatcher:    dispatcher,
		consultations: services.NewConsultationService(engine.NewMatchingEngine(requests, clk, ids), requestCache, dispatcher, cfg),
		bookings:      services.NewBookingService(engine.NewBookingEngine(slots, clk, ids, time.UTC), dispatcher, cfg),
	}
}

func requestPayload() *models.CreateRequestPayload {
	return &models.CreateRequestPayload{
		Category:       "mathematics",
		Title:          "Linear algebra exam prep",
		Level:          models.LevelIntermediate,
		BudgetMin:      2000,
		BudgetMax:      5000,
		PreferredDates: []models.Date{"2026-10-20", "2026-10-21"},
		PreferredTimes: []models.TimeRange{{Start: "18:00", End: "20:00"}},
	}
}

func offerPayload() *models.SubmitOfferPayload {
	return &models.SubmitOfferPayload{
		Message:          "Happy to help",
		OfferedPrice:     4000,
		OfferedDate:      "2026-10-20",
		OfferedStartTime: "18:00",
		OfferedEndTime:   "19:00",
	}
}

func (f *fixture) openRequest(t *testing.T, student *models.ActorSession) *models.ConsultationRequest {
	t.Helper()
	req, err := f.consultations.CreateRequest(context.Background(), student, requestPayload())
	require.NoError(t, err)
	return req
}

func (f *fixture) publishSlot(t *testing.T, instructor *models.ActorSession, day int) *models.TimeSlot {
	t.Helper()
	slot, err := f.bookings.CreateSlot(context.Background(), instructor, &models.CreateSlotPayload{
		DayOfWeek: &day,
		StartTime: "10:00",
		EndTime:   "11:00",
	})
	require.NoError(t, err)
	return slot
}
