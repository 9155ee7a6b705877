package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

func TestCompareQuotes(t *testing.T) {
	five := 5
	two := 2

	quotes := []model.Quote{
		{ID: "q-1", PriceCents: 100000},
		{ID: "q-2", PriceCents: 80000, DurationDays: &five},
		{ID: "q-3", PriceCents: 100000, DurationDays: &two},
	}

	tests := []struct {
		name      string
		criterion Criterion
		wantOrder []string
	}{
		{
			name:      "by price, ties keep insertion order",
			criterion: CriterionPrice,
			wantOrder: []string{"q-2", "q-1", "q-3"},
		},
		{
			name:      "by duration, absent duration sorts last",
			criterion: CriterionDuration,
			wantOrder: []string{"q-3", "q-2", "q-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareQuotes(quotes, tt.criterion)
			require.NoError(t, err)

			gotOrder := make([]string, len(got))
			for i, q := range got {
				gotOrder[i] = q.ID
			}
			assert.Equal(t, tt.wantOrder, gotOrder)

			// Вход не изменяется и порядок в нём сохраняется.
			assert.Equal(t, "q-1", quotes[0].ID)
			assert.Equal(t, "q-2", quotes[1].ID)
			assert.Equal(t, "q-3", quotes[2].ID)
		})
	}
}

func TestCompareQuotes_StableForEqualPricesWithAbsentDuration(t *testing.T) {
	five := 5

	quotes := []model.Quote{
		{ID: "absent", PriceCents: 1000},
		{ID: "present", PriceCents: 1000, DurationDays: &five},
	}

	got, err := CompareQuotes(quotes, CriterionDuration)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "present", got[0].ID)
	assert.Equal(t, "absent", got[1].ID)
}

func TestCompareQuotes_UnknownCriterion(t *testing.T) {
	_, err := CompareQuotes(nil, Criterion("deadline"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompareQuotes_Restartable(t *testing.T) {
	quotes := []model.Quote{
		{ID: "q-1", PriceCents: 300},
		{ID: "q-2", PriceCents: 100},
	}

	first, err := CompareQuotes(quotes, CriterionPrice)
	require.NoError(t, err)
	second, err := CompareQuotes(quotes, CriterionPrice)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
