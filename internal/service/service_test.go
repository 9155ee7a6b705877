package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmeshcher/servimarket-system/internal/engine"
	"github.com/mmeshcher/servimarket-system/internal/model"
	"github.com/mmeshcher/servimarket-system/internal/repository"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

// newMemoryService собирает сервис поверх хранилища в памяти с
// детерминированными идентификаторами.
func newMemoryService() *Service {
	svc := NewService(repository.NewMemoryRepository(), nil)

	seq := 0
	svc.newID = func() string {
		seq++
		return string(rune('a'+seq-1)) + "-id"
	}
	svc.now = func() time.Time {
		seq++
		return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
	}

	return svc
}

func TestRegisterUser_InvalidRole(t *testing.T) {
	svc := newMemoryService()

	_, err := svc.RegisterUser(context.Background(), "ana", "pass", "Ana", model.Role("admin"))
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRegisterUser_DuplicateLogin(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, "ana", "pass", "Ana", model.RoleRequester); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.RegisterUser(ctx, "ana", "other", "Ana II", model.RoleRequester)
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
}

func TestAuthenticateUser(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	registered, err := svc.RegisterUser(ctx, "ana", "secret", "Ana", model.RoleRequester)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	u, err := svc.AuthenticateUser(ctx, "ana", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != registered.ID {
		t.Fatalf("authenticated wrong user: %s", u.ID)
	}

	if _, err := svc.AuthenticateUser(ctx, "ana", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.AuthenticateUser(ctx, "ghost", "secret"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

// fullLifecycle проводит заявку по всему жизненному циклу и возвращает
// сервис с идентификаторами участников.
func fullLifecycle(t *testing.T) (*Service, string, string, string, string) {
	t.Helper()

	svc := newMemoryService()
	ctx := context.Background()

	requester, err := svc.RegisterUser(ctx, "ana", "pass", "Ana", model.RoleRequester)
	if err != nil {
		t.Fatalf("register requester: %v", err)
	}
	provider, err := svc.RegisterUser(ctx, "boris", "pass", "Boris", model.RoleServiceProvider)
	if err != nil {
		t.Fatalf("register provider: %v", err)
	}

	published, err := svc.CreateService(ctx, requester.ID, ServiceDraft{Title: "fix the roof"})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if published.Status != model.ServiceStatusPublished {
		t.Fatalf("status = %s, want %s", published.Status, model.ServiceStatusPublished)
	}

	quote, err := svc.SubmitQuote(ctx, provider.ID, published.ID, QuoteDraft{PriceCents: 100000})
	if err != nil {
		t.Fatalf("submit quote: %v", err)
	}

	return svc, requester.ID, provider.ID, published.ID, quote.ID
}

func TestLifecycle_EndToEnd(t *testing.T) {
	svc, requesterID, providerID, serviceID, quoteID := fullLifecycle(t)
	ctx := context.Background()

	assigned, err := svc.SelectQuote(ctx, requesterID, serviceID, quoteID)
	if err != nil {
		t.Fatalf("select quote: %v", err)
	}
	if assigned.Status != model.ServiceStatusAssigned || assigned.SelectedQuoteID != quoteID {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}

	rating := 4
	completed, err := svc.CompleteService(ctx, requesterID, serviceID, &rating)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != model.ServiceStatusCompleted {
		t.Fatalf("status = %s, want %s", completed.Status, model.ServiceStatusCompleted)
	}

	provider, err := svc.GetUser(ctx, providerID)
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if provider.Reputation.RatingSum != 4 || provider.Reputation.RatingCount != 1 {
		t.Fatalf("reputation = %+v, want sum 4 count 1", provider.Reputation)
	}

	// Повторное завершение отклоняется и не трогает репутацию.
	again := 5
	if _, err := svc.CompleteService(ctx, requesterID, serviceID, &again); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("second completion err = %v, want ErrInvalidState", err)
	}
	provider, _ = svc.GetUser(ctx, providerID)
	if provider.Reputation.RatingCount != 1 {
		t.Fatalf("reputation double-counted: %+v", provider.Reputation)
	}

	name, err := svc.AssignedProviderName(ctx, serviceID)
	if err != nil {
		t.Fatalf("assigned provider name: %v", err)
	}
	if name != "Boris" {
		t.Fatalf("assigned provider = %q, want Boris", name)
	}
}

// Проверка версии заявки защищает только саму заявку; репутация общая.
// Параллельные завершения двух разных заявок одного исполнителя обязаны
// накопить обе оценки.
func TestCompleteService_ConcurrentRatingsAccumulate(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	requester, err := svc.RegisterUser(ctx, "ana", "pass", "Ana", model.RoleRequester)
	if err != nil {
		t.Fatalf("register requester: %v", err)
	}
	provider, err := svc.RegisterUser(ctx, "boris", "pass", "Boris", model.RoleServiceProvider)
	if err != nil {
		t.Fatalf("register provider: %v", err)
	}

	var serviceIDs []string
	for _, title := range []string{"paint the fence", "fix the roof"} {
		published, err := svc.CreateService(ctx, requester.ID, ServiceDraft{Title: title})
		if err != nil {
			t.Fatalf("create service: %v", err)
		}
		quote, err := svc.SubmitQuote(ctx, provider.ID, published.ID, QuoteDraft{PriceCents: 50000})
		if err != nil {
			t.Fatalf("submit quote: %v", err)
		}
		if _, err := svc.SelectQuote(ctx, requester.ID, published.ID, quote.ID); err != nil {
			t.Fatalf("select quote: %v", err)
		}
		serviceIDs = append(serviceIDs, published.ID)
	}

	ratings := []int{5, 3}
	start := make(chan struct{})
	errCh := make(chan error, len(serviceIDs))

	var wg sync.WaitGroup
	for i, id := range serviceIDs {
		wg.Add(1)
		go func(serviceID string, rating int) {
			defer wg.Done()
			<-start
			_, err := svc.CompleteService(ctx, requester.ID, serviceID, &rating)
			errCh <- err
		}(id, ratings[i])
	}

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	got, err := svc.GetUser(ctx, provider.ID)
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if got.Reputation.RatingSum != 8 || got.Reputation.RatingCount != 2 {
		t.Fatalf("reputation = %+v, want sum 8 count 2", got.Reputation)
	}
}

func TestSubmitQuote_AfterAssignmentLocked(t *testing.T) {
	svc, requesterID, _, serviceID, quoteID := fullLifecycle(t)
	ctx := context.Background()

	if _, err := svc.SelectQuote(ctx, requesterID, serviceID, quoteID); err != nil {
		t.Fatalf("select: %v", err)
	}

	second, err := svc.RegisterUser(ctx, "carla", "pass", "Carla", model.RoleServiceProvider)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = svc.SubmitQuote(ctx, second.ID, serviceID, QuoteDraft{PriceCents: 80000})
	if !errors.Is(err, engine.ErrServiceLocked) {
		t.Fatalf("err = %v, want ErrServiceLocked", err)
	}
}

func TestEditQuote_PersistsPatch(t *testing.T) {
	svc, _, providerID, serviceID, quoteID := fullLifecycle(t)
	ctx := context.Background()

	price := int64(95000)
	notes := "includes materials"
	edited, err := svc.EditQuote(ctx, providerID, serviceID, quoteID, model.QuotePatch{
		PriceCents: &price,
		Notes:      &notes,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.PriceCents != price || edited.Notes != notes {
		t.Fatalf("patch not applied: %+v", edited)
	}

	stored, err := svc.GetService(ctx, serviceID)
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	got, ok := stored.QuoteByID(quoteID)
	if !ok || got.PriceCents != price {
		t.Fatalf("patch not persisted: %+v", got)
	}
}

func TestWithdrawQuote_Persists(t *testing.T) {
	svc, _, providerID, serviceID, quoteID := fullLifecycle(t)
	ctx := context.Background()

	if err := svc.WithdrawQuote(ctx, providerID, serviceID, quoteID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	stored, err := svc.GetService(ctx, serviceID)
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if len(stored.Quotes) != 0 {
		t.Fatalf("quote still present after withdrawal")
	}
}

func TestBeginEvaluation_IdempotentNoVersionBump(t *testing.T) {
	svc, requesterID, _, serviceID, _ := fullLifecycle(t)
	ctx := context.Background()

	first, err := svc.BeginEvaluation(ctx, requesterID, serviceID)
	if err != nil {
		t.Fatalf("begin evaluation: %v", err)
	}
	if first.Status != model.ServiceStatusInEvaluation {
		t.Fatalf("status = %s, want %s", first.Status, model.ServiceStatusInEvaluation)
	}

	// Повторный вызов — no-op, версия хранимой заявки не меняется.
	before, _ := svc.GetService(ctx, serviceID)
	second, err := svc.BeginEvaluation(ctx, requesterID, serviceID)
	if err != nil {
		t.Fatalf("repeat begin evaluation: %v", err)
	}
	if second.Status != model.ServiceStatusInEvaluation {
		t.Fatalf("status regressed: %s", second.Status)
	}
	after, _ := svc.GetService(ctx, serviceID)
	if after.Version != before.Version {
		t.Fatalf("version bumped on no-op: %d -> %d", before.Version, after.Version)
	}
}

func TestCompareQuotes_OrdersStoredQuotes(t *testing.T) {
	svc, _, _, serviceID, _ := fullLifecycle(t)
	ctx := context.Background()

	second, err := svc.RegisterUser(ctx, "carla", "pass", "Carla", model.RoleServiceProvider)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	days := 3
	if _, err := svc.SubmitQuote(ctx, second.ID, serviceID, QuoteDraft{PriceCents: 70000, DurationDays: &days}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	byPrice, err := svc.CompareQuotes(ctx, serviceID, engine.CriterionPrice)
	if err != nil {
		t.Fatalf("compare by price: %v", err)
	}
	if byPrice[0].PriceCents != 70000 {
		t.Fatalf("cheapest quote must come first, got %d", byPrice[0].PriceCents)
	}

	byDuration, err := svc.CompareQuotes(ctx, serviceID, engine.CriterionDuration)
	if err != nil {
		t.Fatalf("compare by duration: %v", err)
	}
	if byDuration[0].DurationDays == nil {
		t.Fatalf("quote with duration must sort before quote without")
	}
}

func TestCreateSupplyOffer(t *testing.T) {
	svc := newMemoryService()
	ctx := context.Background()

	supplier, err := svc.RegisterUser(ctx, "dana", "pass", "Dana", model.RoleSupplyProvider)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	offer, err := svc.CreateSupplyOffer(ctx, supplier.ID, "cement", "construction", 4500)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	offers, err := svc.ListSupplyOffers(ctx)
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(offers) != 1 || offers[0].ID != offer.ID {
		t.Fatalf("unexpected offers: %+v", offers)
	}

	// Заказчик не может публиковать материалы.
	requester, err := svc.RegisterUser(ctx, "ana", "pass", "Ana", model.RoleRequester)
	if err != nil {
		t.Fatalf("register requester: %v", err)
	}
	if _, err := svc.CreateSupplyOffer(ctx, requester.ID, "bricks", "construction", 900); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSaveTransition_StaleVersionConflict(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	requester, err := svc.RegisterUser(ctx, "ana", "pass", "Ana", model.RoleRequester)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	published, err := svc.CreateService(ctx, requester.ID, ServiceDraft{Title: "job"})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	// Переход поверх устаревшей версии отклоняется хранилищем.
	stale := *published
	err = repo.SaveTransition(ctx, stale, published.Version-1, nil)
	if !IsConflict(err) {
		t.Fatalf("err = %v, want version conflict", err)
	}
}
