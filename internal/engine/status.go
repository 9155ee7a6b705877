package engine

import (
	"fmt"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

// beginEvaluation переводит опубликованную заявку в статус сравнения
// предложений. Для заявки, уже находящейся в этом статусе или дальше по
// жизненному циклу, событие — no-op: повторное открытие сравнения не
// должно откатывать статус.
func beginEvaluation(svc model.Service) model.Service {
	if svc.Status.AtLeast(model.ServiceStatusInEvaluation) {
		return svc
	}

	out := cloneService(svc)
	out.Status = model.ServiceStatusInEvaluation
	return out
}

// selectQuote выбирает предложение и переводит заявку в статус "назначена".
// Переназначение запрещено: для уже назначенной или завершённой заявки
// возвращается ErrServiceLocked.
func selectQuote(svc model.Service, quoteID string) (model.Service, error) {
	if svc.Status.AtLeast(model.ServiceStatusAssigned) {
		return svc, fmt.Errorf("%w: service %s is %s", ErrServiceLocked, svc.ID, svc.Status)
	}

	if _, ok := svc.QuoteByID(quoteID); !ok {
		return svc, fmt.Errorf("%w: quote %s", ErrNotFound, quoteID)
	}

	out := cloneService(svc)
	out.Status = model.ServiceStatusAssigned
	out.SelectedQuoteID = quoteID
	return out, nil
}
