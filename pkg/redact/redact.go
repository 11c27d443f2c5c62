// redact содержит хелперы для безопасного логирования чувствительных значений.
package redact

import "strings"

// Email маскирует локальную часть адреса, сохраняя домен:
// "foobar@example.com" -> "fo***@example.com". Строки без единственного '@'
// маскируются целиком. Локальная часть режется по рунам, не по байтам.
func Email(s string) string {
	at := strings.LastIndexByte(s, '@')
	if at < 0 || strings.IndexByte(s, '@') != at {
		return "***"
	}

	local, domain := []rune(s[:at]), s[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}

	return string(local[:2]) + "***@" + domain
}

func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
