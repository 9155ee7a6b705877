package engine

import (
	"fmt"
	"sort"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

// Criterion задаёт критерий сравнения предложений.
type Criterion string

const (
	// CriterionPrice — сортировка по возрастанию цены.
	CriterionPrice Criterion = "price"
	// CriterionDuration — сортировка по возрастанию срока выполнения.
	// Предложения без срока идут после всех предложений со сроком.
	CriterionDuration Criterion = "duration"
)

// CompareQuotes возвращает новый срез предложений, упорядоченный по
// указанному критерию. Сортировка стабильна: при равенстве сохраняется
// исходный порядок добавления. Вход не изменяется.
func CompareQuotes(quotes []model.Quote, criterion Criterion) ([]model.Quote, error) {
	out := make([]model.Quote, len(quotes))
	copy(out, quotes)

	switch criterion {
	case CriterionPrice:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].PriceCents < out[j].PriceCents
		})
	case CriterionDuration:
		sort.SliceStable(out, func(i, j int) bool {
			return durationOf(out[i]) < durationOf(out[j])
		})
	default:
		return nil, fmt.Errorf("%w: unknown criterion %q", ErrValidation, criterion)
	}

	return out, nil
}

// durationOf возвращает срок выполнения предложения.
// Отсутствующий срок трактуется как бесконечный.
func durationOf(q model.Quote) int {
	if q.DurationDays == nil {
		return int(^uint(0) >> 1)
	}
	return *q.DurationDays
}
