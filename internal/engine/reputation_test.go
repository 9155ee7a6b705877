package engine

import (
	"errors"
	"testing"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

// assignedState возвращает состояние с заявкой svc-1 в статусе "назначена"
// и выбранным предложением исполнителя prov-1.
func assignedState(t *testing.T) State {
	t.Helper()

	s := newTestState()

	next, err := Apply(s, SubmitQuote{
		ActorID:   "prov-1",
		ServiceID: "svc-1",
		Quote:     testQuote("q-1", "prov-1", 100000),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	next, err = Apply(next, SelectQuote{ActorID: "req-1", ServiceID: "svc-1", QuoteID: "q-1"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	return next
}

func TestCompleteService_WithRating(t *testing.T) {
	s := assignedState(t)
	rating := 4

	next, err := Apply(s, CompleteService{ActorID: "req-1", ServiceID: "svc-1", Rating: &rating})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	svc := next.Services["svc-1"]
	if svc.Status != model.ServiceStatusCompleted {
		t.Fatalf("status = %s, want %s", svc.Status, model.ServiceStatusCompleted)
	}
	if svc.Rating == nil || *svc.Rating != 4 {
		t.Fatalf("service rating = %v, want 4", svc.Rating)
	}

	provider := next.Users["prov-1"]
	if provider.Reputation.RatingSum != 4 || provider.Reputation.RatingCount != 1 {
		t.Fatalf("reputation = %+v, want sum 4 count 1", provider.Reputation)
	}
	if avg := provider.Reputation.Average(); avg != 4.0 {
		t.Fatalf("average = %v, want 4.0", avg)
	}

	// Исходный снимок остаётся прежним: заявка назначена, репутация пуста.
	if s.Services["svc-1"].Status != model.ServiceStatusAssigned {
		t.Fatalf("input state mutated")
	}
	if s.Users["prov-1"].Reputation.RatingCount != 0 {
		t.Fatalf("input reputation mutated")
	}
}

func TestCompleteService_SecondCompletionRejected(t *testing.T) {
	s := assignedState(t)
	rating := 4

	completed, err := Apply(s, CompleteService{ActorID: "req-1", ServiceID: "svc-1", Rating: &rating})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	second := 5
	_, err = Apply(completed, CompleteService{ActorID: "req-1", ServiceID: "svc-1", Rating: &second})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}

	// Повторное завершение не должно коснуться репутации.
	provider := completed.Users["prov-1"]
	if provider.Reputation.RatingSum != 4 || provider.Reputation.RatingCount != 1 {
		t.Fatalf("reputation double-counted: %+v", provider.Reputation)
	}
}

func TestCompleteService_WithoutRating(t *testing.T) {
	s := assignedState(t)

	next, err := Apply(s, CompleteService{ActorID: "req-1", ServiceID: "svc-1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	svc := next.Services["svc-1"]
	if svc.Status != model.ServiceStatusCompleted {
		t.Fatalf("status = %s, want %s", svc.Status, model.ServiceStatusCompleted)
	}
	if svc.Rating != nil {
		t.Fatalf("rating = %v, want nil", svc.Rating)
	}

	provider := next.Users["prov-1"]
	if provider.Reputation.RatingCount != 0 {
		t.Fatalf("reputation must not change without a rating: %+v", provider.Reputation)
	}
}

func TestCompleteService_RatingOutOfScale(t *testing.T) {
	for _, rating := range []int{0, 6, -1} {
		s := assignedState(t)
		r := rating

		_, err := Apply(s, CompleteService{ActorID: "req-1", ServiceID: "svc-1", Rating: &r})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("rating %d: err = %v, want ErrValidation", rating, err)
		}
		if s.Services["svc-1"].Status != model.ServiceStatusAssigned {
			t.Fatalf("rating %d: status changed on rejected completion", rating)
		}
	}
}

func TestCompleteService_NotAssigned(t *testing.T) {
	s := newTestState()
	rating := 3

	_, err := Apply(s, CompleteService{ActorID: "req-1", ServiceID: "svc-1", Rating: &rating})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestReputation_AccumulatesAcrossCompletions(t *testing.T) {
	s := newTestState()
	ratings := []int{5, 3, 4, 1, 5}

	for i, rating := range ratings {
		serviceID := string(rune('a' + i))
		quoteID := "q-" + serviceID

		next, err := Apply(s, CreateService{Service: model.Service{
			ID:          serviceID,
			RequesterID: "req-1",
			Title:       "job " + serviceID,
		}})
		if err != nil {
			t.Fatalf("create service %s: %v", serviceID, err)
		}

		next, err = Apply(next, SubmitQuote{
			ActorID:   "prov-1",
			ServiceID: serviceID,
			Quote:     testQuote(quoteID, "prov-1", 50000),
		})
		if err != nil {
			t.Fatalf("submit %s: %v", quoteID, err)
		}

		next, err = Apply(next, SelectQuote{ActorID: "req-1", ServiceID: serviceID, QuoteID: quoteID})
		if err != nil {
			t.Fatalf("select %s: %v", quoteID, err)
		}

		r := rating
		next, err = Apply(next, CompleteService{ActorID: "req-1", ServiceID: serviceID, Rating: &r})
		if err != nil {
			t.Fatalf("complete %s: %v", serviceID, err)
		}
		s = next
	}

	rep := s.Users["prov-1"].Reputation
	if rep.RatingCount != 5 {
		t.Fatalf("ratingCount = %d, want 5", rep.RatingCount)
	}
	if rep.RatingSum != 18 {
		t.Fatalf("ratingSum = %d, want 18", rep.RatingSum)
	}
	if avg := rep.Average(); avg != 3.6 {
		t.Fatalf("average = %v, want 3.6", avg)
	}
}

func TestReputation_AverageWithoutRatings(t *testing.T) {
	var rep model.Reputation
	if avg := rep.Average(); avg != 0 {
		t.Fatalf("average of empty reputation = %v, want 0", avg)
	}
}
