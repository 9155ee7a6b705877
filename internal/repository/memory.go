package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

// MemoryRepository хранит состояние в памяти процесса. Используется при
// запуске без строки подключения к БД и в тестах. Мьютекс сериализует
// записи: одновременные переходы по одной заявке выполняются по очереди,
// как того требует однописательная модель ядра.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[string]model.User
	services map[string]model.Service
	offers   map[string]model.SupplyOffer
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    map[string]model.User{},
		services: map[string]model.Service{},
		offers:   map[string]model.SupplyOffer{},
	}
}

// Close освобождает ресурсы хранилища. Для памяти это no-op.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; exists {
		return fmt.Errorf("%w: %s", ErrUserExists, u.ID)
	}
	for _, existing := range r.users {
		if existing.Login == u.Login {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Login)
		}
	}

	r.users[u.ID] = u
	return nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Login == login {
			out := u
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := u
	return &out, nil
}

// CreateService сохраняет новую заявку.
func (r *MemoryRepository) CreateService(_ context.Context, svc model.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[svc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrServiceExists, svc.ID)
	}

	r.services[svc.ID] = copyService(svc)
	return nil
}

// GetService возвращает заявку вместе с предложениями.
func (r *MemoryRepository) GetService(_ context.Context, id string) (*model.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	out := copyService(svc)
	return &out, nil
}

// ListServices возвращает все заявки, упорядоченные по времени создания.
func (r *MemoryRepository) ListServices(_ context.Context) ([]model.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]model.Service, 0, len(r.services))
	for _, svc := range r.services {
		services = append(services, copyService(svc))
	}

	sort.Slice(services, func(i, j int) bool {
		if services[i].CreatedAt.Equal(services[j].CreatedAt) {
			return services[i].ID < services[j].ID
		}
		return services[i].CreatedAt.Before(services[j].CreatedAt)
	})

	return services, nil
}

// SaveTransition атомарно сохраняет результат перехода. Репутация
// исполнителя применяется как приращение под тем же мьютексом, что и
// заявка: параллельные завершения разных заявок одного исполнителя
// накапливают оценки, а не перезаписывают их.
func (r *MemoryRepository) SaveTransition(_ context.Context, svc model.Service, expectedVersion int64, delta *model.ReputationDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.services[svc.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, svc.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: service %s version %d", ErrVersionConflict, svc.ID, expectedVersion)
	}

	if delta != nil {
		u, ok := r.users[delta.ProviderID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUserNotFound, delta.ProviderID)
		}
		u.Reputation.RatingSum += int64(delta.Rating)
		u.Reputation.RatingCount++
		r.users[u.ID] = u
	}

	next := copyService(svc)
	next.Version = expectedVersion + 1
	r.services[svc.ID] = next

	return nil
}

// CreateSupplyOffer сохраняет новое предложение материалов.
func (r *MemoryRepository) CreateSupplyOffer(_ context.Context, offer model.SupplyOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.offers[offer.ID]; exists {
		return fmt.Errorf("%w: %s", ErrOfferExists, offer.ID)
	}

	r.offers[offer.ID] = offer
	return nil
}

// ListSupplyOffers возвращает все предложения материалов.
func (r *MemoryRepository) ListSupplyOffers(_ context.Context) ([]model.SupplyOffer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offers := make([]model.SupplyOffer, 0, len(r.offers))
	for _, o := range r.offers {
		offers = append(offers, o)
	}

	sort.Slice(offers, func(i, j int) bool {
		if offers[i].CreatedAt.Equal(offers[j].CreatedAt) {
			return offers[i].ID < offers[j].ID
		}
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})

	return offers, nil
}

// copyService возвращает копию заявки, не разделяющую срезы с оригиналом.
func copyService(svc model.Service) model.Service {
	out := svc

	if svc.Quotes != nil {
		out.Quotes = make([]model.Quote, len(svc.Quotes))
		copy(out.Quotes, svc.Quotes)
	}
	if svc.RequiredSupply != nil {
		out.RequiredSupply = make([]string, len(svc.RequiredSupply))
		copy(out.RequiredSupply, svc.RequiredSupply)
	}
	if svc.Rating != nil {
		rating := *svc.Rating
		out.Rating = &rating
	}

	return out
}
