package engine

// Проекции для слоя отображения. Все функции чистые и ничего не изменяют.

// ProviderName возвращает отображаемое имя пользователя по идентификатору.
func ProviderName(s State, providerID string) (string, bool) {
	u, ok := s.Users[providerID]
	if !ok {
		return "", false
	}
	return u.Name, true
}

// RatingLabel переводит целую оценку 1–5 в человекочитаемую подпись.
func RatingLabel(rating int) string {
	switch rating {
	case 1:
		return "very poor"
	case 2:
		return "poor"
	case 3:
		return "fair"
	case 4:
		return "good"
	case 5:
		return "excellent"
	}
	return "not rated"
}

// AssignedProviderName возвращает имя исполнителя, назначенного на заявку.
// Для заявки без выбранного предложения возвращает false.
func AssignedProviderName(s State, serviceID string) (string, bool) {
	svc, ok := s.Services[serviceID]
	if !ok || svc.SelectedQuoteID == "" {
		return "", false
	}

	selected, ok := svc.QuoteByID(svc.SelectedQuoteID)
	if !ok {
		return "", false
	}

	return ProviderName(s, selected.ProviderID)
}
