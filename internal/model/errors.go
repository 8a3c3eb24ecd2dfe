package model

import "errors"

// ErrorKind классифицирует доменные ошибки для выбора ответа пользователю.
type ErrorKind int

const (
	// KindValidation — некорректный ввод, состояние не изменяется.
	KindValidation ErrorKind = iota + 1
	// KindRejected — отказ по бизнес-правилу.
	KindRejected
	// KindNotFound — запрошенная сущность отсутствует.
	KindNotFound
	// KindForbidden — у участника нет прав на операцию.
	KindForbidden
	// KindConsistency — сбой атомарной фиксации, частичные изменения откачены.
	KindConsistency
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error — доменная ошибка со стабильным машинным кодом.
// Значения используются как сентинелы: сравнение через errors.Is.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	parent  *Error
}

// NewError создаёт доменную ошибку указанного вида.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Derive создаёт уточняющую ошибку того же вида; errors.Is(derived, e) == true.
func (e *Error) Derive(code, message string) *Error {
	return &Error{Kind: e.Kind, Code: code, Message: message, parent: e}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// AsError извлекает доменную ошибку из цепочки.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

var (
	// ErrForbidden возвращается, если участник не владеет ресурсом и не является администратором.
	ErrForbidden = NewError(KindForbidden, "forbidden", "operation not permitted")
	// ErrCheckoutFailed возвращается при сбое атомарного оформления заказа.
	ErrCheckoutFailed = NewError(KindConsistency, "checkout_failed", "checkout failed")
	// ErrMenuItemNotFound возвращается, если позиции меню не существует.
	ErrMenuItemNotFound = NewError(KindNotFound, "menu_item_not_found", "menu item not found")
	// ErrInvalidInput возвращается при некорректных параметрах запроса.
	ErrInvalidInput = NewError(KindValidation, "invalid_input", "invalid input")
)
