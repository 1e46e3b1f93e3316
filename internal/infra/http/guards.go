package http

import (
	"net"
	"net/http"
	"strings"
)

// HostGuard пропускает только запросы с Host из списка.
// "*" разрешает всё, ".example.com" разрешает домен и поддомены.
func HostGuard(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(r.Host, allowed) {
				http.Error(w, "invalid host", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostAllowed(host string, allowed []string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "*":
			return true
		case strings.HasPrefix(a, "."):
			if host == a[1:] || strings.HasSuffix(host, a) {
				return true
			}
		case host == a:
			return true
		}
	}
	return false
}

// OriginGuard отклоняет небезопасные запросы с чужим Origin.
// Запросы без Origin (не из браузера) проходят.
func OriginGuard(trusted []string, exempt ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(trusted))
	for _, o := range trusted {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || safeMethod(r.Method) || isExempt(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := set[strings.ToLower(origin)]; !ok {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func isExempt(path string, exempt []string) bool {
	for _, p := range exempt {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
