package services

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// normalizePhone parses an international number (leading '+') and returns
// it in E.164 form. Only length plausibility per country is checked, so
// reserved ranges such as +1 555 pass.
func normalizePhone(phone string) (string, bool) {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") {
		return "", false
	}
	num, err := phonenumbers.Parse(phone, "")
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// phoneKey is the store key of a submitted phone. Unparseable input is
// kept as is so that it simply finds no record.
func phoneKey(phone string) string {
	if n, ok := normalizePhone(phone); ok {
		return n
	}
	return phone
}
