package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestRecoveryMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // suppress log output during tests

	tests := []struct {
		name           string
		route          string
		handler        http.HandlerFunc
		expectPanic    bool
		expectedStatus int
	}{
		{
			name:  "healthz ok",
			route: "/healthz",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			},
			expectPanic:    false,
			expectedStatus: http.StatusOK,
		},
		{
			name:  "metrics gatherer panics",
			route: "/metrics",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("gatherer error")
			},
			expectPanic:    true,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:  "nil panic",
			route: "/readyz",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(nil)
			},
			expectPanic:    true,
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := RecoveryMiddleware(logger)(tt.handler)

			req := httptest.NewRequest("GET", tt.route, nil)
			w := httptest.NewRecorder()

			func() {
				defer func() {
					if r := recover(); r != nil && !tt.expectPanic {
						t.Errorf("unexpected panic: %v", r)
					}
				}()
				wrapped.ServeHTTP(w, req)
			}()

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectPanic {
				body := w.Body.String()
				if body != "Internal Server Error\n" {
					t.Errorf("expected error message, got %q", body)
				}
			}
		})
	}
}

func TestRecoveryMiddlewarePreservesNormalHandling(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	wrapped := RecoveryMiddleware(logger)(handler)

	req := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}
