package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Kind - класс отказа оракула. Вызывающая сторона различает их без разбора текста.
type Kind string

const (
	KindSpawn    Kind = "spawn_failed" // процесс не удалось запустить
	KindNoResult Kind = "no_result"    // на stdout нет ни одной строки-объекта JSON
	KindModel    Kind = "model_error"  // оракул сам сообщил об ошибке в поле error
	KindTimeout  Kind = "timeout"      // процесс не уложился в дедлайн
	KindCanceled Kind = "canceled"     // вызывающий ушел раньше, чем оракул ответил
)

// Error - типизированная ошибка вызова оракула.
// Stderr заполнен для KindNoResult (и для остальных, если его удалось собрать).
type Error struct {
	Kind    Kind
	Message string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("oracle: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает класс ошибки оракула или "" для чужих ошибок.
func KindOf(err error) Kind {
	var oErr *Error
	if errors.As(err, &oErr) {
		return oErr.Kind
	}
	return ""
}

// abortKind - отмена вызывающим не равна таймауту: только дедлайн говорит о медленном оракуле.
func abortKind(ctxErr error) Kind {
	if errors.Is(ctxErr, context.Canceled) {
		return KindCanceled
	}
	return KindTimeout
}

// Unavailable - ошибки, после которых имеет смысл поберечь систему (считаются breaker'ом).
func Unavailable(err error) bool {
	switch KindOf(err) {
	case KindSpawn, KindTimeout:
		return true
	}
	return false
}
