package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "InsightsHeader"); got != "Insights" {
		t.Errorf("T(InsightsHeader) = %q, want 'Insights'", got)
	}
	if got := T(ctx, "ErrInsufficientRoster"); got != "At least 2 students are required for pairing" {
		t.Errorf("T(ErrInsufficientRoster) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "InsightsHeader"); got != "Выводы" {
		t.Errorf("T(InsightsHeader) = %q, want 'Выводы'", got)
	}
	if got := T(ctx, "ErrPairNotFound"); got != "Пара не найдена" {
		t.Errorf("T(ErrPairNotFound) = %q, want 'Пара не найдена'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "PairsCount", 1); got != "1 pair" {
		t.Errorf("Tp(PairsCount, 1) = %q, want '1 pair'", got)
	}
	if got := Tp(ctx, "PairsCount", 5); got != "5 pairs" {
		t.Errorf("Tp(PairsCount, 5) = %q, want '5 pairs'", got)
	}
}

func TestPluralRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	tests := map[int]string{
		1:  "1 ученик",
		3:  "3 ученика",
		5:  "5 учеников",
		21: "21 ученик",
	}
	for n, want := range tests {
		if got := Tp(ctx, "StudentsCount", n); got != want {
			t.Errorf("Tp(StudentsCount, %d) = %q, want %q", n, got, want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "PairingHeader", map[string]any{"Strategy": "optimal"})
	if got != "Pairing strategy: optimal" {
		t.Errorf("Td(PairingHeader) = %q, want 'Pairing strategy: optimal'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	if got := len(Languages()); got != 2 {
		t.Errorf("Languages() has %d tags, want 2", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "RecommendationsHeader")
	}))

	tests := []struct {
		accept string
		want   string
	}{
		{"", "Recommendations"},
		{"ru-RU,ru;q=0.9,en;q=0.5", "Рекомендации"},
		{"de-DE", "Recommendations"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.accept != "" {
			req.Header.Set("Accept-Language", tt.accept)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.accept, got, tt.want)
		}
	}
}
