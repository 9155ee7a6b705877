package engine

import (
	"fmt"

	"github.com/mmeshcher/servimarket-system/internal/model"
	"github.com/mmeshcher/servimarket-system/internal/validation"
)

// completeService завершает назначенную заявку и, если передана оценка,
// обновляет репутацию исполнителя выбранного предложения. Обе мутации
// входят в один переход: читатель не может увидеть завершённую заявку
// без обновлённой репутации и наоборот.
//
// Повторное завершение отклоняется проверкой статуса: после первого
// успешного завершения заявка больше не находится в статусе "назначена".
// Именно этот механизм защищает репутацию от двойного учёта.
func completeService(s State, svc model.Service, rating *int) (State, error) {
	if svc.Status != model.ServiceStatusAssigned {
		return s, fmt.Errorf("%w: service %s is %s, want %s",
			ErrInvalidState, svc.ID, svc.Status, model.ServiceStatusAssigned)
	}

	if rating != nil && !validation.IsValidRating(*rating) {
		return s, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}

	out := cloneService(svc)
	out.Status = model.ServiceStatusCompleted
	if rating != nil {
		r := *rating
		out.Rating = &r
	}

	next := s.withService(out)

	if rating != nil {
		selected, ok := svc.QuoteByID(svc.SelectedQuoteID)
		if !ok {
			return s, fmt.Errorf("%w: selected quote %s", ErrNotFound, svc.SelectedQuoteID)
		}

		provider, ok := s.Users[selected.ProviderID]
		if !ok {
			return s, fmt.Errorf("%w: provider %s", ErrNotFound, selected.ProviderID)
		}

		provider.Reputation.RatingSum += int64(*rating)
		provider.Reputation.RatingCount++
		next = next.withUser(provider)
	}

	return next, nil
}
