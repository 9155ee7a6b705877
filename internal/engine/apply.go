package engine

import (
	"fmt"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

// Apply — единственная точка входа ядра. Принимает снимок состояния и
// событие, возвращает новый снимок либо исходный снимок и ошибку.
// Входной снимок никогда не изменяется.
func Apply(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case CreateUser:
		return applyCreateUser(s, e)
	case CreateService:
		return applyCreateService(s, e)
	case SubmitQuote:
		return applySubmitQuote(s, e)
	case EditQuote:
		return applyEditQuote(s, e)
	case WithdrawQuote:
		return applyWithdrawQuote(s, e)
	case BeginEvaluation:
		return applyBeginEvaluation(s, e)
	case SelectQuote:
		return applySelectQuote(s, e)
	case CompleteService:
		return applyCompleteService(s, e)
	case CreateSupplyOffer:
		return applyCreateSupplyOffer(s, e)
	default:
		return s, fmt.Errorf("%w: unknown event %T", ErrValidation, ev)
	}
}

func applyCreateUser(s State, e CreateUser) (State, error) {
	if !e.User.Role.IsValid() {
		return s, fmt.Errorf("%w: unknown role %q", ErrValidation, e.User.Role)
	}
	if _, exists := s.Users[e.User.ID]; exists {
		return s, fmt.Errorf("%w: user %s already exists", ErrValidation, e.User.ID)
	}
	for _, u := range s.Users {
		if u.Login == e.User.Login {
			return s, fmt.Errorf("%w: login %s already taken", ErrValidation, e.User.Login)
		}
	}
	return s.withUser(e.User), nil
}

func applyCreateService(s State, e CreateService) (State, error) {
	svc := e.Service
	if _, exists := s.Services[svc.ID]; exists {
		return s, fmt.Errorf("%w: service %s already exists", ErrValidation, svc.ID)
	}

	requester, ok := s.Users[svc.RequesterID]
	if !ok {
		return s, fmt.Errorf("%w: requester %s", ErrNotFound, svc.RequesterID)
	}
	if requester.Role != model.RoleRequester {
		return s, fmt.Errorf("%w: user %s is not a requester", ErrValidation, svc.RequesterID)
	}

	svc.Status = model.ServiceStatusPublished
	svc.SelectedQuoteID = ""
	svc.Rating = nil
	svc.Quotes = nil
	return s.withService(svc), nil
}

func applySubmitQuote(s State, e SubmitQuote) (State, error) {
	svc, ok := s.Services[e.ServiceID]
	if !ok {
		return s, fmt.Errorf("%w: service %s", ErrNotFound, e.ServiceID)
	}

	provider, ok := s.Users[e.ActorID]
	if !ok {
		return s, fmt.Errorf("%w: provider %s", ErrNotFound, e.ActorID)
	}
	if provider.Role != model.RoleServiceProvider {
		return s, fmt.Errorf("%w: user %s is not a service provider", ErrValidation, e.ActorID)
	}

	q := e.Quote
	q.ProviderID = e.ActorID

	next, err := submitQuote(svc, q)
	if err != nil {
		return s, err
	}
	return s.withService(next), nil
}

func applyEditQuote(s State, e EditQuote) (State, error) {
	svc, ok := s.Services[e.ServiceID]
	if !ok {
		return s, fmt.Errorf("%w: service %s", ErrNotFound, e.ServiceID)
	}

	next, err := editQuote(svc, e.ActorID, e.QuoteID, e.Patch)
	if err != nil {
		return s, err
	}
	return s.withService(next), nil
}

func applyWithdrawQuote(s State, e WithdrawQuote) (State, error) {
	svc, ok := s.Services[e.ServiceID]
	if !ok {
		return s, fmt.Errorf("%w: service %s", ErrNotFound, e.ServiceID)
	}

	next, err := withdrawQuote(svc, e.ActorID, e.QuoteID)
	if err != nil {
		return s, err
	}
	return s.withService(next), nil
}

func applyBeginEvaluation(s State, e BeginEvaluation) (State, error) {
	svc, err := serviceOfRequester(s, e.ServiceID, e.ActorID)
	if err != nil {
		return s, err
	}
	return s.withService(beginEvaluation(svc)), nil
}

func applySelectQuote(s State, e SelectQuote) (State, error) {
	svc, err := serviceOfRequester(s, e.ServiceID, e.ActorID)
	if err != nil {
		return s, err
	}

	next, err := selectQuote(svc, e.QuoteID)
	if err != nil {
		return s, err
	}
	return s.withService(next), nil
}

func applyCompleteService(s State, e CompleteService) (State, error) {
	svc, err := serviceOfRequester(s, e.ServiceID, e.ActorID)
	if err != nil {
		return s, err
	}
	return completeService(s, svc, e.Rating)
}

func applyCreateSupplyOffer(s State, e CreateSupplyOffer) (State, error) {
	if _, exists := s.Supplies[e.Offer.ID]; exists {
		return s, fmt.Errorf("%w: supply offer %s already exists", ErrValidation, e.Offer.ID)
	}

	supplier, ok := s.Users[e.Offer.SupplierID]
	if !ok {
		return s, fmt.Errorf("%w: supplier %s", ErrNotFound, e.Offer.SupplierID)
	}
	if supplier.Role != model.RoleSupplyProvider {
		return s, fmt.Errorf("%w: user %s is not a supply provider", ErrValidation, e.Offer.SupplierID)
	}

	return s.withSupply(e.Offer), nil
}

// serviceOfRequester возвращает заявку, принадлежащую указанному заказчику.
// Чужая или отсутствующая заявка неразличимы для вызывающего.
func serviceOfRequester(s State, serviceID, actorID string) (model.Service, error) {
	svc, ok := s.Services[serviceID]
	if !ok || svc.RequesterID != actorID {
		return model.Service{}, fmt.Errorf("%w: service %s", ErrNotFound, serviceID)
	}
	return svc, nil
}
