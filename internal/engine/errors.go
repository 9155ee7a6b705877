package engine

import "errors"

// ErrValidation возвращается при некорректных входных данных:
// неположительная цена или срок, оценка вне шкалы, дубликат идентификатора.
var ErrValidation = errors.New("validation failed")

// ErrNotFound возвращается при ссылке на несуществующую заявку,
// предложение или пользователя, а также при попытке действовать
// с чужой сущностью.
var ErrNotFound = errors.New("not found")

// ErrServiceLocked возвращается при попытке изменить предложение
// по заявке, статус которой запрещает изменения.
var ErrServiceLocked = errors.New("service locked")

// ErrInvalidState возвращается при переходе из статуса,
// который его не допускает.
var ErrInvalidState = errors.New("invalid state")
