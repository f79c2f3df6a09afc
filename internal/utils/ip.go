package utils

import (
	"net"
	"strings"
)

// NormalizeIP приводит адрес клиента к канонической форме:
// IPv6-отображённые IPv4-адреса (::ffff:a.b.c.d) схлопываются в IPv4.
// Невалидный вход возвращается как есть после обрезки пробелов.
func NormalizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// IPAllowed проверяет вхождение адреса в allow-list.
// Пустой список означает, что проверка выключена.
func IPAllowed(addr string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}
	normalized := NormalizeIP(addr)
	for _, allowed := range allowList {
		if NormalizeIP(allowed) == normalized {
			return true
		}
	}
	return false
}
