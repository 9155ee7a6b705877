package engine

import "github.com/mmeshcher/servimarket-system/internal/model"

// Event представляет входящее событие жизненного цикла.
// Множество событий закрыто: Apply обрабатывает каждый вариант явно.
type Event interface {
	isEvent()
}

// CreateUser добавляет нового пользователя. Единственный инвариант —
// уникальность идентификатора и логина.
type CreateUser struct {
	User model.User
}

// CreateService публикует новую заявку от имени заказчика.
type CreateService struct {
	Service model.Service
}

// SubmitQuote добавляет предложение исполнителя к заявке.
type SubmitQuote struct {
	ActorID   string
	ServiceID string
	Quote     model.Quote
}

// EditQuote изменяет изменяемые поля существующего предложения.
type EditQuote struct {
	ActorID   string
	ServiceID string
	QuoteID   string
	Patch     model.QuotePatch
}

// WithdrawQuote отзывает предложение исполнителя.
type WithdrawQuote struct {
	ActorID   string
	ServiceID string
	QuoteID   string
}

// BeginEvaluation переводит заявку в статус сравнения предложений.
// Для заявки, уже прошедшей эту стадию, событие является no-op.
type BeginEvaluation struct {
	ActorID   string
	ServiceID string
}

// SelectQuote выбирает одно предложение и назначает исполнителя.
type SelectQuote struct {
	ActorID   string
	ServiceID string
	QuoteID   string
}

// CompleteService завершает назначенную заявку и, если передана оценка,
// обновляет репутацию исполнителя в том же переходе.
type CompleteService struct {
	ActorID   string
	ServiceID string
	Rating    *int
}

// CreateSupplyOffer добавляет предложение материалов от поставщика.
type CreateSupplyOffer struct {
	Offer model.SupplyOffer
}

func (CreateUser) isEvent()        {}
func (CreateService) isEvent()     {}
func (SubmitQuote) isEvent()       {}
func (EditQuote) isEvent()         {}
func (WithdrawQuote) isEvent()     {}
func (BeginEvaluation) isEvent()   {}
func (SelectQuote) isEvent()       {}
func (CompleteService) isEvent()   {}
func (CreateSupplyOffer) isEvent() {}
