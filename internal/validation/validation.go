// Package validation содержит функции валидации входных данных.
package validation

// IsValidPrice проверяет, что цена предложения положительна.
func IsValidPrice(priceCents int64) bool {
	return priceCents > 0
}

// IsValidDuration проверяет, что срок выполнения в днях положителен.
func IsValidDuration(days int) bool {
	return days > 0
}

// IsValidRating проверяет, что оценка лежит на закрытой шкале от 1 до 5.
func IsValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
