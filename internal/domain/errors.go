package domain

import (
	"errors"
	"fmt"
)

// Базовые ошибки, пересекающие границы слоёв.
var (
	// ErrNotFound возвращается, когда запрошенная запись отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrUnauthorized возвращается при недостатке прав на операцию.
	ErrUnauthorized = errors.New("недостаточно прав")
	// ErrValidation возвращается при некорректном вводе пользователя.
	ErrValidation = errors.New("некорректные данные")
	// ErrConflict возвращается, когда состояние записи уже изменено конкурентно.
	ErrConflict = errors.New("состояние уже изменено")
)

// TransportErrorKind разделяет ошибки транспорта на повторяемые и окончательные.
type TransportErrorKind string

const (
	// TransportTransient — временный сбой, отправку можно повторить.
	TransportTransient TransportErrorKind = "transient"
	// TransportPermanent — окончательный отказ, повтор бессмыслен.
	TransportPermanent TransportErrorKind = "permanent"
)

// TransportError описывает сбой взаимодействия с Telegram Bot API.
type TransportError struct {
	Kind TransportErrorKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransientTransportError оборачивает временный сбой транспорта.
func NewTransientTransportError(op string, err error) error {
	return &TransportError{Kind: TransportTransient, Op: op, Err: err}
}

// NewPermanentTransportError оборачивает окончательный отказ транспорта.
func NewPermanentTransportError(op string, err error) error {
	return &TransportError{Kind: TransportPermanent, Op: op, Err: err}
}

// IsTransientTransport сообщает, является ли ошибка временным сбоем транспорта.
func IsTransientTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == TransportTransient
}

// IsPermanentTransport сообщает, является ли ошибка окончательным отказом транспорта.
func IsPermanentTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == TransportPermanent
}
