// Package service реализует оркестрацию переходов жизненного цикла:
// загрузка снимка из хранилища, чистый переход в ядре, атомарное
// сохранение результата и отправка уведомлений после фиксации.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/servimarket-system/internal/engine"
	"github.com/mmeshcher/servimarket-system/internal/model"
	"github.com/mmeshcher/servimarket-system/internal/notify"
	"github.com/mmeshcher/servimarket-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.User) error
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CreateService(ctx context.Context, svc model.Service) error
	GetService(ctx context.Context, id string) (*model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	SaveTransition(ctx context.Context, svc model.Service, expectedVersion int64, delta *model.ReputationDelta) error
	CreateSupplyOffer(ctx context.Context, offer model.SupplyOffer) error
	ListSupplyOffers(ctx context.Context) ([]model.SupplyOffer, error)
}

// Service содержит бизнес-логику маркетплейса услуг.
type Service struct {
	repo     Repository
	notifier *notify.Client
	now      func() time.Time
	newID    func() string
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом уведомлений.
func NewService(repo Repository, notifier *notify.Client) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с указанной ролью.
func (s *Service) RegisterUser(ctx context.Context, login, password, name string, role model.Role) (*model.User, error) {
	if !role.IsValid() {
		return nil, engine.ErrValidation
	}

	u := model.User{
		ID:           s.newID(),
		Login:        login,
		PasswordHash: hashPassword(login, password),
		Name:         name,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(login, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ServiceDraft содержит описательные поля новой заявки.
// Ядро эти поля не интерпретирует.
type ServiceDraft struct {
	Title          string
	Description    string
	Category       string
	Location       string
	Date           string
	RequiredSupply []string
}

// CreateService публикует новую заявку от имени заказчика.
func (s *Service) CreateService(ctx context.Context, requesterID string, draft ServiceDraft) (*model.Service, error) {
	requester, err := s.repo.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	svc := model.Service{
		ID:             s.newID(),
		RequesterID:    requesterID,
		Title:          draft.Title,
		Description:    draft.Description,
		Category:       draft.Category,
		Location:       draft.Location,
		Date:           draft.Date,
		RequiredSupply: draft.RequiredSupply,
		Version:        1,
		CreatedAt:      s.now().UTC(),
	}

	state := stateWith(nil, requester)
	next, err := engine.Apply(state, engine.CreateService{Service: svc})
	if err != nil {
		return nil, err
	}

	created := next.Services[svc.ID]
	if err := s.repo.CreateService(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetService возвращает заявку по идентификатору.
func (s *Service) GetService(ctx context.Context, id string) (*model.Service, error) {
	return s.repo.GetService(ctx, id)
}

// ListServices возвращает все заявки.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.repo.ListServices(ctx)
}

// QuoteDraft содержит поля нового предложения исполнителя.
type QuoteDraft struct {
	PriceCents   int64
	DurationDays *int
	Deadline     string
	Notes        string
}

// SubmitQuote добавляет предложение исполнителя к заявке.
func (s *Service) SubmitQuote(ctx context.Context, actorID, serviceID string, draft QuoteDraft) (*model.Quote, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	q := model.Quote{
		ID:           s.newID(),
		ServiceID:    serviceID,
		ProviderID:   actorID,
		PriceCents:   draft.PriceCents,
		DurationDays: draft.DurationDays,
		Deadline:     draft.Deadline,
		Notes:        draft.Notes,
		CreatedAt:    s.now().UTC(),
	}

	state := stateWith(svc, actor)
	next, err := engine.Apply(state, engine.SubmitQuote{
		ActorID:   actorID,
		ServiceID: serviceID,
		Quote:     q,
	})
	if err != nil {
		return nil, err
	}

	updated := next.Services[serviceID]
	if err := s.repo.SaveTransition(ctx, updated, svc.Version, nil); err != nil {
		return nil, err
	}

	s.send(ctx, notify.Message{
		Kind:       notify.KindQuoteSubmitted,
		ServiceID:  serviceID,
		QuoteID:    q.ID,
		ProviderID: actorID,
	})

	saved, _ := updated.QuoteByID(q.ID)
	return &saved, nil
}

// EditQuote изменяет изменяемые поля предложения.
func (s *Service) EditQuote(ctx context.Context, actorID, serviceID, quoteID string, patch model.QuotePatch) (*model.Quote, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	state := stateWith(svc)
	next, err := engine.Apply(state, engine.EditQuote{
		ActorID:   actorID,
		ServiceID: serviceID,
		QuoteID:   quoteID,
		Patch:     patch,
	})
	if err != nil {
		return nil, err
	}

	updated := next.Services[serviceID]
	if err := s.repo.SaveTransition(ctx, updated, svc.Version, nil); err != nil {
		return nil, err
	}

	saved, _ := updated.QuoteByID(quoteID)
	return &saved, nil
}

// WithdrawQuote отзывает предложение исполнителя.
func (s *Service) WithdrawQuote(ctx context.Context, actorID, serviceID, quoteID string) error {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return err
	}

	state := stateWith(svc)
	next, err := engine.Apply(state, engine.WithdrawQuote{
		ActorID:   actorID,
		ServiceID: serviceID,
		QuoteID:   quoteID,
	})
	if err != nil {
		return err
	}

	updated := next.Services[serviceID]
	if err := s.repo.SaveTransition(ctx, updated, svc.Version, nil); err != nil {
		return err
	}

	s.send(ctx, notify.Message{
		Kind:       notify.KindQuoteWithdrawn,
		ServiceID:  serviceID,
		QuoteID:    quoteID,
		ProviderID: actorID,
	})

	return nil
}

// BeginEvaluation переводит заявку заказчика в статус сравнения предложений.
func (s *Service) BeginEvaluation(ctx context.Context, actorID, serviceID string) (*model.Service, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	state := stateWith(svc)
	next, err := engine.Apply(state, engine.BeginEvaluation{ActorID: actorID, ServiceID: serviceID})
	if err != nil {
		return nil, err
	}

	updated := next.Services[serviceID]
	if updated.Status != svc.Status {
		if err := s.repo.SaveTransition(ctx, updated, svc.Version, nil); err != nil {
			return nil, err
		}
	}

	return &updated, nil
}

// SelectQuote выбирает предложение и назначает исполнителя.
func (s *Service) SelectQuote(ctx context.Context, actorID, serviceID, quoteID string) (*model.Service, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	state := stateWith(svc)
	next, err := engine.Apply(state, engine.SelectQuote{
		ActorID:   actorID,
		ServiceID: serviceID,
		QuoteID:   quoteID,
	})
	if err != nil {
		return nil, err
	}

	updated := next.Services[serviceID]
	if err := s.repo.SaveTransition(ctx, updated, svc.Version, nil); err != nil {
		return nil, err
	}

	selected, _ := updated.QuoteByID(quoteID)
	s.send(ctx, notify.Message{
		Kind:       notify.KindServiceAssigned,
		ServiceID:  serviceID,
		QuoteID:    quoteID,
		ProviderID: selected.ProviderID,
	})

	return &updated, nil
}

// CompleteService завершает назначенную заявку. Если передана оценка,
// репутация исполнителя выбранного предложения обновляется в том же
// сохранении, что и заявка, — как приращение, чтобы параллельное
// завершение другой заявки того же исполнителя не потеряло оценку.
func (s *Service) CompleteService(ctx context.Context, actorID, serviceID string, rating *int) (*model.Service, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	var provider *model.User
	if selected, ok := svc.QuoteByID(svc.SelectedQuoteID); ok {
		provider, err = s.repo.GetUserByID(ctx, selected.ProviderID)
		if err != nil {
			return nil, err
		}
	}

	state := stateWith(svc, provider)
	next, err := engine.Apply(state, engine.CompleteService{
		ActorID:   actorID,
		ServiceID: serviceID,
		Rating:    rating,
	})
	if err != nil {
		return nil, err
	}

	var delta *model.ReputationDelta
	if rating != nil && provider != nil {
		delta = &model.ReputationDelta{ProviderID: provider.ID, Rating: *rating}
	}

	updated := next.Services[serviceID]
	if err := s.repo.SaveTransition(ctx, updated, svc.Version, delta); err != nil {
		return nil, err
	}

	msg := notify.Message{
		Kind:      notify.KindServiceCompleted,
		ServiceID: serviceID,
		Rating:    rating,
	}
	if provider != nil {
		msg.ProviderID = provider.ID
	}
	s.send(ctx, msg)

	return &updated, nil
}

// CompareQuotes возвращает предложения заявки, упорядоченные по критерию.
func (s *Service) CompareQuotes(ctx context.Context, serviceID string, criterion engine.Criterion) ([]model.Quote, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return engine.CompareQuotes(svc.Quotes, criterion)
}

// AssignedProviderName возвращает имя исполнителя, назначенного на заявку.
func (s *Service) AssignedProviderName(ctx context.Context, serviceID string) (string, error) {
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return "", err
	}

	selected, ok := svc.QuoteByID(svc.SelectedQuoteID)
	if !ok {
		return "", nil
	}

	provider, err := s.repo.GetUserByID(ctx, selected.ProviderID)
	if err != nil {
		return "", err
	}

	state := stateWith(svc, provider)
	name, _ := engine.AssignedProviderName(state, serviceID)
	return name, nil
}

// CreateSupplyOffer публикует предложение материалов от поставщика.
func (s *Service) CreateSupplyOffer(ctx context.Context, supplierID, name, category string, priceCents int64) (*model.SupplyOffer, error) {
	supplier, err := s.repo.GetUserByID(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	offer := model.SupplyOffer{
		ID:         s.newID(),
		SupplierID: supplierID,
		Name:       name,
		Category:   category,
		PriceCents: priceCents,
		CreatedAt:  s.now().UTC(),
	}

	state := stateWith(nil, supplier)
	if _, err := engine.Apply(state, engine.CreateSupplyOffer{Offer: offer}); err != nil {
		return nil, err
	}

	if err := s.repo.CreateSupplyOffer(ctx, offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

// ListSupplyOffers возвращает все предложения материалов.
func (s *Service) ListSupplyOffers(ctx context.Context) ([]model.SupplyOffer, error) {
	return s.repo.ListSupplyOffers(ctx)
}

// IsConflict сообщает, вызвана ли ошибка устаревшей версией заявки.
func IsConflict(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict)
}

// send отправляет уведомление по возможности. Доставка не влияет на
// результат перехода, поэтому ошибки игнорируются.
func (s *Service) send(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, msg)
}

// stateWith собирает минимальный снимок состояния для одного перехода.
func stateWith(svc *model.Service, users ...*model.User) engine.State {
	state := engine.NewState()
	if svc != nil {
		state.Services[svc.ID] = *svc
	}
	for _, u := range users {
		if u != nil {
			state.Users[u.ID] = *u
		}
	}
	return state
}
