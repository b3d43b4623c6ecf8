// Package taxid handles Brazilian taxpayer identifiers (CPF and CNPJ).
package taxid

import (
	"fmt"
	"strings"
)

// Kinds of taxpayer identifier
const (
	KindCPF  = "cpf"
	KindCNPJ = "cnpj"
)

// Digits strips everything but ASCII digits from s
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Kind returns KindCPF or KindCNPJ based on the digit count, or "" if neither
func Kind(s string) string {
	switch len(Digits(s)) {
	case 11:
		return KindCPF
	case 14:
		return KindCNPJ
	}
	return ""
}

// Validate checks the length and check digits of a CPF or CNPJ
func Validate(s string) error {
	d := Digits(s)
	switch len(d) {
	case 11:
		if !validCPF(d) {
			return fmt.Errorf("invalid CPF check digits")
		}
	case 14:
		if !validCNPJ(d) {
			return fmt.Errorf("invalid CNPJ check digits")
		}
	default:
		return fmt.Errorf("tax id must have 11 (CPF) or 14 (CNPJ) digits, got %d", len(d))
	}
	return nil
}

// Mask hides all but the last two digits, for logs
func Mask(s string) string {
	d := Digits(s)
	if len(d) <= 2 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-2) + d[len(d)-2:]
}

func validCPF(d string) bool {
	if repeated(d) {
		return false
	}
	return checkDigit(d[:9], []int{10, 9, 8, 7, 6, 5, 4, 3, 2}) == int(d[9]-'0') &&
		checkDigit(d[:10], []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}) == int(d[10]-'0')
}

func validCNPJ(d string) bool {
	if repeated(d) {
		return false
	}
	first := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	second := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	return checkDigit(d[:12], first) == int(d[12]-'0') &&
		checkDigit(d[:13], second) == int(d[13]-'0')
}

// checkDigit computes the mod-11 verifier shared by CPF and CNPJ
func checkDigit(d string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(d[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func repeated(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}
