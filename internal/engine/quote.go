package engine

import (
	"fmt"

	"github.com/mmeshcher/servimarket-system/internal/model"
	"github.com/mmeshcher/servimarket-system/internal/validation"
)

// quotesLocked — единственный предикат блокировки предложений.
// Предложения изменяемы только пока заявка принимает или сравнивает их;
// все три операции жизненного цикла предложений используют этот предикат.
func quotesLocked(status model.ServiceStatus) bool {
	return status != model.ServiceStatusPublished && status != model.ServiceStatusInEvaluation
}

// submitQuote добавляет предложение к заявке.
func submitQuote(svc model.Service, q model.Quote) (model.Service, error) {
	if quotesLocked(svc.Status) {
		return svc, fmt.Errorf("%w: service %s is %s", ErrServiceLocked, svc.ID, svc.Status)
	}

	if !validation.IsValidPrice(q.PriceCents) {
		return svc, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if q.DurationDays != nil && !validation.IsValidDuration(*q.DurationDays) {
		return svc, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if _, exists := svc.QuoteByID(q.ID); exists {
		return svc, fmt.Errorf("%w: quote %s already exists", ErrValidation, q.ID)
	}

	out := cloneService(svc)
	q.ServiceID = svc.ID
	out.Quotes = append(out.Quotes, q)
	return out, nil
}

// editQuote заменяет изменяемые поля предложения с указанным идентификатором.
// Поля id, serviceId, providerId и createdAt неизменяемы: патч их не содержит,
// попытки изменить их отбрасываются на границе HTTP, а не отклоняются.
func editQuote(svc model.Service, actorID, quoteID string, patch model.QuotePatch) (model.Service, error) {
	if quotesLocked(svc.Status) {
		return svc, fmt.Errorf("%w: service %s is %s", ErrServiceLocked, svc.ID, svc.Status)
	}

	idx := -1
	for i, q := range svc.Quotes {
		if q.ID == quoteID && q.ProviderID == actorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return svc, fmt.Errorf("%w: quote %s", ErrNotFound, quoteID)
	}

	if patch.PriceCents != nil && !validation.IsValidPrice(*patch.PriceCents) {
		return svc, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if patch.DurationDays != nil && !validation.IsValidDuration(*patch.DurationDays) {
		return svc, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	out := cloneService(svc)
	q := out.Quotes[idx]
	if patch.PriceCents != nil {
		q.PriceCents = *patch.PriceCents
	}
	if patch.DurationDays != nil {
		days := *patch.DurationDays
		q.DurationDays = &days
	}
	if patch.Deadline != nil {
		q.Deadline = *patch.Deadline
	}
	if patch.Notes != nil {
		q.Notes = *patch.Notes
	}
	out.Quotes[idx] = q
	return out, nil
}

// withdrawQuote удаляет предложение исполнителя.
// Если удаляется выбранное предложение (достижимо только в обход
// блокировки), выбор сбрасывается в том же переходе.
func withdrawQuote(svc model.Service, actorID, quoteID string) (model.Service, error) {
	if quotesLocked(svc.Status) {
		return svc, fmt.Errorf("%w: service %s is %s", ErrServiceLocked, svc.ID, svc.Status)
	}

	idx := -1
	for i, q := range svc.Quotes {
		if q.ID == quoteID && q.ProviderID == actorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return svc, fmt.Errorf("%w: quote %s", ErrNotFound, quoteID)
	}

	out := cloneService(svc)
	out.Quotes = append(out.Quotes[:idx], out.Quotes[idx+1:]...)
	if out.SelectedQuoteID == quoteID {
		out.SelectedQuoteID = ""
	}
	return out, nil
}
