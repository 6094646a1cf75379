package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeSerper answers queries from a map keyed by the query text.
type fakeSerper struct {
	mu      sync.Mutex
	answers map[string]string
	status  int
	queries []string
}

func (f *fakeSerper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-API-KEY") != "test-key" {
		http.Error(w, `{"message":"Unauthorized."}`, http.StatusUnauthorized)
		return
	}
	var body struct {
		Q  string `json:"q"`
		GL string `json:"gl"`
		HL string `json:"hl"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.queries = append(f.queries, body.Q)
	status := f.status
	answer, ok := f.answers[body.Q]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		answer = `{}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(answer))
}

func newSerper(t *testing.T, f *fakeSerper, key string) *SerperClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewSerperClient(SerperConfig{APIKey: key, BaseURL: srv.URL, GL: "es", HL: "es"}, srv.Client(), zerolog.Nop())
}

func TestGoogleTool(t *testing.T) {
	f := &fakeSerper{answers: map[string]string{
		"fiestas de san juan": `{"organic":[
			{"title":"A","link":"https://a","snippet":"a"},
			{"title":"B","link":"https://b","snippet":"b"},
			{"title":"C","link":"https://c","snippet":"c"}]}`,
	}}
	tool := NewGoogleTool(newSerper(t, f, "test-key"), 2)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "top k results",
			query: "fiestas de san juan",
			want:  `[{"title":"A","url":"https://a","description":"a"},{"title":"B","url":"https://b","description":"b"}]`,
		},
		{
			name:  "no results",
			query: "nothing at all",
			want:  `[{"description":"NOT FOUND"}]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tool.Run(context.Background(), map[string]string{"query": tt.query})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestGoogleTool_Errors(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		status      int
		query       string
		recoverable bool
	}{
		{"missing key", "", 0, "q", false},
		{"bad key", "wrong", 0, "q", false},
		{"upstream failure", "test-key", http.StatusBadGateway, "q", true},
		{"missing query", "test-key", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewGoogleTool(newSerper(t, &fakeSerper{status: tt.status}, tt.key), 3)
			_, err := tool.Run(context.Background(), map[string]string{"query": tt.query})
			if err == nil {
				t.Fatal("Expected an error")
			}
			var toolErr *Error
			if !errors.As(err, &toolErr) {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if IsRecoverable(err) != tt.recoverable {
				t.Errorf("Expected recoverable=%v, got %v", tt.recoverable, IsRecoverable(err))
			}
		})
	}
}

func newNominatim(t *testing.T, places map[string]string) (*Geocoder, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("User-Agent") != "flyercal-test" {
			t.Errorf("Expected user agent header, got %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("countrycodes") != "es" {
			t.Errorf("Expected countrycodes=es, got %q", r.URL.Query().Get("countrycodes"))
		}
		name, ok := places[r.URL.Query().Get("q")]
		if !ok {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"display_name": name}})
	}))
	t.Cleanup(srv.Close)
	g := NewGeocoder(GeocoderConfig{BaseURL: srv.URL, CountryCodes: "es", UserAgent: "flyercal-test"}, srv.Client(), nil, zerolog.Nop())
	return g, &calls
}

func TestLocationTool(t *testing.T) {
	f := &fakeSerper{answers: map[string]string{
		"where is Teatro Colon":       `{"answerBox":{"answer":"Calle Mayor 1, A Coruña"}}`,
		"where is Palau":              `{"knowledgeGraph":{"title":"Palau de la Música","address":"Carrer Palau, Barcelona"}}`,
		"where is Plaza Myor":         `{"searchInformation":{"didYouMean":"where is Plaza Mayor"}}`,
		"where is Plaza Mayor":        `{"answerBox":{"answer":"Madrid"}}`,
		"where is Sala Pequeña":       `{"organic":[]}`,
		"where is Nowhere Particular": `{}`,
	}}
	geocoder, _ := newNominatim(t, map[string]string{"Sala Pequeña": "Sala Pequeña, Vigo, Galicia, España"})
	tool := NewLocationTool(newSerper(t, f, "test-key"), geocoder, "", zerolog.Nop())

	tests := []struct {
		location string
		want     string
	}{
		{"Teatro Colon", `{"address":"Calle Mayor 1, A Coruña"}`},
		{"Palau", `{"address":{"address":"Carrer Palau, Barcelona","title":"Palau de la Música"}}`},
		{"Plaza Myor", `{"address":"Madrid"}`},
		{"Sala Pequeña", `[{"title":"Sala Pequeña","description":"Sala Pequeña, Vigo, Galicia, España"}]`},
		{"Nowhere Particular", `"NOT FOUND"`},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			got, err := tool.Run(context.Background(), map[string]string{"location": tt.location})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLocationTool_FollowsSuggestionOnce(t *testing.T) {
	f := &fakeSerper{answers: map[string]string{
		"where is Plaza Myor": `{"searchInformation":{"didYouMean":"where is Plaza Myr"}}`,
		"where is Plaza Myr":  `{"searchInformation":{"didYouMean":"where is Plaza Myor"}}`,
	}}
	tool := NewLocationTool(newSerper(t, f, "test-key"), nil, "", zerolog.Nop())

	got, err := tool.Run(context.Background(), map[string]string{"location": "Plaza Myor"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != `"NOT FOUND"` {
		t.Errorf("Expected NOT FOUND, got %s", got)
	}
	if len(f.queries) != 2 {
		t.Errorf("Expected 2 queries, got %v", f.queries)
	}
}
