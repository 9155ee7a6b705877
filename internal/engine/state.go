// Package engine реализует ядро жизненного цикла заявок и предложений.
//
// Все операции ядра — чистые функции над снимком состояния: вход никогда
// не изменяется, при успехе возвращается новый снимок, при ошибке —
// исходный снимок без изменений. Сериализацию конкурентных вызовов
// обеспечивает вызывающая сторона.
package engine

import "github.com/mmeshcher/servimarket-system/internal/model"

// State представляет полный снимок состояния маркетплейса.
type State struct {
	Users    map[string]model.User
	Services map[string]model.Service
	Supplies map[string]model.SupplyOffer
}

// NewState создаёт пустой снимок состояния.
func NewState() State {
	return State{
		Users:    map[string]model.User{},
		Services: map[string]model.Service{},
		Supplies: map[string]model.SupplyOffer{},
	}
}

// withService возвращает новый снимок с заменённой заявкой.
// Остальные записи разделяются с исходным снимком.
func (s State) withService(svc model.Service) State {
	services := make(map[string]model.Service, len(s.Services)+1)
	for k, v := range s.Services {
		services[k] = v
	}
	services[svc.ID] = svc

	return State{
		Users:    s.Users,
		Services: services,
		Supplies: s.Supplies,
	}
}

// withUser возвращает новый снимок с заменённым пользователем.
func (s State) withUser(u model.User) State {
	users := make(map[string]model.User, len(s.Users)+1)
	for k, v := range s.Users {
		users[k] = v
	}
	users[u.ID] = u

	return State{
		Users:    users,
		Services: s.Services,
		Supplies: s.Supplies,
	}
}

// withSupply возвращает новый снимок с добавленным предложением материалов.
func (s State) withSupply(offer model.SupplyOffer) State {
	supplies := make(map[string]model.SupplyOffer, len(s.Supplies)+1)
	for k, v := range s.Supplies {
		supplies[k] = v
	}
	supplies[offer.ID] = offer

	return State{
		Users:    s.Users,
		Services: s.Services,
		Supplies: supplies,
	}
}

// cloneService возвращает глубокую копию заявки: срез предложений и
// указатель на оценку копируются, чтобы изменение копии не затронуло
// исходный снимок.
func cloneService(svc model.Service) model.Service {
	out := svc

	out.Quotes = make([]model.Quote, len(svc.Quotes))
	copy(out.Quotes, svc.Quotes)

	if svc.Rating != nil {
		r := *svc.Rating
		out.Rating = &r
	}

	if svc.RequiredSupply != nil {
		out.RequiredSupply = make([]string, len(svc.RequiredSupply))
		copy(out.RequiredSupply, svc.RequiredSupply)
	}

	return out
}
