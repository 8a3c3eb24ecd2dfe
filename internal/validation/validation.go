// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/mmeshcher/gopherfood/internal/model"
)

const (
	minPromoLen   = 3
	maxPromoLen   = 32
	maxNotesLen   = 200
	maxPaymentLen = 64
)

var (
	// ErrInvalidPromoCode возвращается для промокода недопустимого формата.
	ErrInvalidPromoCode = model.ErrInvalidInput.Derive("invalid_promo_code", "promo code format is invalid")
	// ErrInvalidNotes возвращается для слишком длинного комментария или комментария с управляющими символами.
	ErrInvalidNotes = model.ErrInvalidInput.Derive("invalid_notes", "notes are invalid")
	// ErrInvalidPaymentRef возвращается для пустой или некорректной платёжной ссылки.
	ErrInvalidPaymentRef = model.ErrInvalidInput.Derive("invalid_payment_reference", "payment reference is invalid")
)

// PromoCode приводит промокод к верхнему регистру и проверяет его формат:
// латинские буквы, цифры, '-' и '_'.
func PromoCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minPromoLen || len(code) > maxPromoLen {
		return "", ErrInvalidPromoCode
	}
	for _, r := range code {
		if !isASCIIAlnum(r) && r != '-' && r != '_' {
			return "", ErrInvalidPromoCode
		}
	}
	return code, nil
}

// Notes обрезает пробелы по краям комментария к позиции и приводит его к NFC,
// чтобы одинаковые по виду комментарии объединяли строки корзины.
func Notes(notes string) (string, error) {
	notes = norm.NFC.String(strings.TrimSpace(notes))
	if utf8.RuneCountInString(notes) > maxNotesLen {
		return "", ErrInvalidNotes
	}
	for _, r := range notes {
		if unicode.IsControl(r) {
			return "", ErrInvalidNotes
		}
	}
	return notes, nil
}

// PaymentReference проверяет идентификатор платежа из внешней системы.
func PaymentReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || len(ref) > maxPaymentLen {
		return "", ErrInvalidPaymentRef
	}
	for _, r := range ref {
		if !isASCIIAlnum(r) && !strings.ContainsRune("-_.:", r) {
			return "", ErrInvalidPaymentRef
		}
	}
	return ref, nil
}

func isASCIIAlnum(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
