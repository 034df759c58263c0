// Package validation содержит проверки пользовательских идентификаторов.
package validation

import "strings"

// IsValidCPF проверяет корректность CPF: 11 цифр и два контрольных разряда.
func IsValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}

	digits := make([]int, 11)
	allEqual := true
	for i, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
		if digits[i] != digits[0] {
			allEqual = false
		}
	}
	// CPF из одинаковых цифр проходит арифметику, но считается недействительным
	if allEqual {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += digits[i] * (10 - i)
	}
	if (sum*10)%11%10 != digits[9] {
		return false
	}

	sum = 0
	for i := 0; i < 10; i++ {
		sum += digits[i] * (11 - i)
	}
	return (sum*10)%11%10 == digits[10]
}

// NormalizePhone убирает из номера телефона все символы, кроме цифр.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone проверяет, что номер телефона содержит от 10 до 15 цифр.
func IsValidPhone(phone string) bool {
	digits := NormalizePhone(phone)
	return len(digits) >= 10 && len(digits) <= 15
}
