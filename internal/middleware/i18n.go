package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeKey struct{}
type claimLocaleKey struct{}

// supported lists the locales step labels are translated to. The first entry
// is the matcher's fallback.
var supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(supported)

// I18N stores the negotiated locale in the request context. Precedence is
// X-Locale, the token's locale claim, Accept-Language, then defaultLocale.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	fallback := normalizeLocale(defaultLocale)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, fallback)
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeKey{}, locale)))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return normalizeLocale(v)
	}
	if v, ok := r.Context().Value(claimLocaleKey{}).(string); ok && v != "" {
		return normalizeLocale(v)
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		tags, _, err := language.ParseAcceptLanguage(header)
		if err == nil && len(tags) > 0 {
			_, idx, conf := matcher.Match(tags...)
			if conf != language.No {
				return baseOf(supported[idx])
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return "en"
}

// normalizeLocale maps any tag onto a supported base language.
func normalizeLocale(raw string) string {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "en"
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "en"
	}
	return baseOf(supported[idx])
}

func baseOf(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey{}).(string); ok {
		return v
	}
	return "en"
}
