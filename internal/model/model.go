// Package model содержит доменные сущности маркетплейса услуг.
package model

import "time"

// Role описывает роль пользователя в системе.
type Role string

const (
	// RoleRequester — заказчик: публикует заявки, выбирает и завершает их.
	RoleRequester Role = "requester"
	// RoleServiceProvider — исполнитель услуг: отправляет предложения по заявкам.
	RoleServiceProvider Role = "service_provider"
	// RoleSupplyProvider — поставщик материалов: публикует предложения материалов.
	RoleSupplyProvider Role = "supply_provider"
)

// IsValid проверяет, что роль принадлежит закрытому множеству ролей.
func (r Role) IsValid() bool {
	switch r {
	case RoleRequester, RoleServiceProvider, RoleSupplyProvider:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	ID           string
	Login        string
	PasswordHash []byte
	Name         string
	Role         Role
	Reputation   Reputation
	CreatedAt    time.Time
}

// Reputation содержит накопленный рейтинг исполнителя.
// Источником истины являются сумма и количество оценок;
// средняя оценка всегда вычисляется из них и отдельно не хранится.
type Reputation struct {
	RatingSum   int64
	RatingCount int64
}

// Average возвращает среднюю оценку исполнителя.
// При отсутствии оценок возвращает 0.
func (r Reputation) Average() float64 {
	if r.RatingCount == 0 {
		return 0
	}
	return float64(r.RatingSum) / float64(r.RatingCount)
}

// ReputationDelta описывает приращение репутации исполнителя,
// применяемое хранилищем в том же сохранении, что и переход заявки.
// Приращение, а не абсолютное значение: параллельные завершения разных
// заявок одного исполнителя не должны затирать оценки друг друга.
type ReputationDelta struct {
	ProviderID string
	Rating     int
}

// ServiceStatus описывает статус заявки на услугу.
type ServiceStatus string

const (
	// ServiceStatusPublished — заявка опубликована и принимает предложения.
	ServiceStatusPublished ServiceStatus = "PUBLISHED"
	// ServiceStatusInEvaluation — заказчик сравнивает предложения.
	ServiceStatusInEvaluation ServiceStatus = "IN_EVALUATION"
	// ServiceStatusAssigned — выбрано одно предложение, исполнитель назначен.
	ServiceStatusAssigned ServiceStatus = "ASSIGNED"
	// ServiceStatusCompleted — услуга завершена.
	ServiceStatusCompleted ServiceStatus = "COMPLETED"
)

// rank возвращает порядковый номер статуса в жизненном цикле.
func (s ServiceStatus) rank() int {
	switch s {
	case ServiceStatusPublished:
		return 0
	case ServiceStatusInEvaluation:
		return 1
	case ServiceStatusAssigned:
		return 2
	case ServiceStatusCompleted:
		return 3
	}
	return -1
}

// AtLeast сообщает, достиг ли статус указанной стадии жизненного цикла.
func (s ServiceStatus) AtLeast(other ServiceStatus) bool {
	return s.rank() >= other.rank()
}

// Service представляет заявку заказчика на выполнение работы.
// Описательные поля (название, категория и т.п.) ядро не интерпретирует.
type Service struct {
	ID              string
	RequesterID     string
	Status          ServiceStatus
	Title           string
	Description     string
	Category        string
	Location        string
	Date            string
	RequiredSupply  []string
	Quotes          []Quote
	SelectedQuoteID string
	Rating          *int
	Version         int64
	CreatedAt       time.Time
}

// QuoteByID возвращает предложение по идентификатору и признак его наличия.
func (s Service) QuoteByID(quoteID string) (Quote, bool) {
	for _, q := range s.Quotes {
		if q.ID == quoteID {
			return q, true
		}
	}
	return Quote{}, false
}

// Quote представляет предложение исполнителя по конкретной заявке.
type Quote struct {
	ID           string
	ServiceID    string
	ProviderID   string
	PriceCents   int64
	DurationDays *int
	Deadline     string
	Notes        string
	CreatedAt    time.Time
}

// QuotePatch описывает изменяемые поля предложения.
// Поля со значением nil остаются без изменений.
type QuotePatch struct {
	PriceCents   *int64
	DurationDays *int
	Deadline     *string
	Notes        *string
}

// SupplyOffer представляет предложение материалов от поставщика.
// Помимо уникальности идентификатора инвариантов не имеет.
type SupplyOffer struct {
	ID         string
	SupplierID string
	Name       string
	Category   string
	PriceCents int64
	CreatedAt  time.Time
}
