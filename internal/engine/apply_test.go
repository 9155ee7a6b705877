package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

func TestApply_CreateUser(t *testing.T) {
	s := NewState()

	next, err := Apply(s, CreateUser{User: model.User{
		ID:    "u-1",
		Login: "ana",
		Name:  "Ana",
		Role:  model.RoleRequester,
	}})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if _, ok := next.Users["u-1"]; !ok {
		t.Fatalf("user was not added")
	}

	_, err = Apply(next, CreateUser{User: model.User{
		ID:    "u-1",
		Login: "other",
		Role:  model.RoleRequester,
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate id err = %v, want ErrValidation", err)
	}

	_, err = Apply(next, CreateUser{User: model.User{
		ID:    "u-2",
		Login: "ana",
		Role:  model.RoleServiceProvider,
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate login err = %v, want ErrValidation", err)
	}

	_, err = Apply(next, CreateUser{User: model.User{
		ID:    "u-3",
		Login: "admin",
		Role:  model.Role("Solicitante"),
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown role err = %v, want ErrValidation", err)
	}
}

func TestApply_CreateService(t *testing.T) {
	s := newTestState()

	next, err := Apply(s, CreateService{Service: model.Service{
		ID:          "svc-2",
		RequesterID: "req-1",
		Title:       "paint the fence",
		// Ядро принудительно нормализует статус и выбор при создании.
		Status:          model.ServiceStatusAssigned,
		SelectedQuoteID: "bogus",
	}})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	svc := next.Services["svc-2"]
	if svc.Status != model.ServiceStatusPublished {
		t.Fatalf("status = %s, want %s", svc.Status, model.ServiceStatusPublished)
	}
	if svc.SelectedQuoteID != "" || svc.Rating != nil || len(svc.Quotes) != 0 {
		t.Fatalf("new service must start empty: %+v", svc)
	}
}

func TestApply_CreateServiceByProviderRejected(t *testing.T) {
	s := newTestState()

	_, err := Apply(s, CreateService{Service: model.Service{
		ID:          "svc-2",
		RequesterID: "prov-1",
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestApply_CreateSupplyOffer(t *testing.T) {
	s := newTestState()
	s.Users["sup-1"] = model.User{
		ID:    "sup-1",
		Login: "supplier",
		Name:  "Dana",
		Role:  model.RoleSupplyProvider,
	}

	next, err := Apply(s, CreateSupplyOffer{Offer: model.SupplyOffer{
		ID:         "off-1",
		SupplierID: "sup-1",
		Name:       "cement",
		PriceCents: 4500,
	}})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if _, ok := next.Supplies["off-1"]; !ok {
		t.Fatalf("offer was not added")
	}

	_, err = Apply(next, CreateSupplyOffer{Offer: model.SupplyOffer{
		ID:         "off-1",
		SupplierID: "sup-1",
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate offer err = %v, want ErrValidation", err)
	}

	_, err = Apply(s, CreateSupplyOffer{Offer: model.SupplyOffer{
		ID:         "off-2",
		SupplierID: "prov-1",
	}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("wrong role err = %v, want ErrValidation", err)
	}
}

func TestApply_UnknownServiceID(t *testing.T) {
	s := newTestState()

	events := []Event{
		SubmitQuote{ActorID: "prov-1", ServiceID: "absent", Quote: testQuote("q-1", "prov-1", 100)},
		EditQuote{ActorID: "prov-1", ServiceID: "absent", QuoteID: "q-1"},
		WithdrawQuote{ActorID: "prov-1", ServiceID: "absent", QuoteID: "q-1"},
		BeginEvaluation{ActorID: "req-1", ServiceID: "absent"},
		SelectQuote{ActorID: "req-1", ServiceID: "absent", QuoteID: "q-1"},
		CompleteService{ActorID: "req-1", ServiceID: "absent"},
	}

	for _, ev := range events {
		if _, err := Apply(s, ev); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%T: err = %v, want ErrNotFound", ev, err)
		}
	}
}

// TestApply_FailureLeavesStateIntact проверяет, что любой отказ оставляет
// снимок состояния глубоко равным снимку до вызова.
func TestApply_FailureLeavesStateIntact(t *testing.T) {
	s := assignedState(t)
	before := snapshotCopy(s)

	bad := 9
	events := []Event{
		SubmitQuote{ActorID: "prov-2", ServiceID: "svc-1", Quote: testQuote("q-9", "prov-2", 100)},
		EditQuote{ActorID: "prov-1", ServiceID: "svc-1", QuoteID: "q-1"},
		WithdrawQuote{ActorID: "prov-1", ServiceID: "svc-1", QuoteID: "q-1"},
		SelectQuote{ActorID: "req-1", ServiceID: "svc-1", QuoteID: "q-1"},
		CompleteService{ActorID: "req-1", ServiceID: "svc-1", Rating: &bad},
		CreateService{Service: model.Service{ID: "svc-1", RequesterID: "req-1"}},
	}

	for _, ev := range events {
		got, err := Apply(s, ev)
		if err == nil {
			t.Fatalf("%T: expected error", ev)
		}
		if !reflect.DeepEqual(snapshotCopy(got), before) {
			t.Fatalf("%T: state changed on error path", ev)
		}
	}

	if !reflect.DeepEqual(snapshotCopy(s), before) {
		t.Fatalf("input state mutated by failed events")
	}
}

// snapshotCopy материализует снимок в сравнимую форму.
func snapshotCopy(s State) map[string]any {
	return map[string]any{
		"users":    s.Users,
		"services": s.Services,
		"supplies": s.Supplies,
	}
}
