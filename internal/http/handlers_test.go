package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type stubChecker struct {
	calls int
	date  *time.Time
}

func (s *stubChecker) RunCheck(_ context.Context, date *time.Time) string {
	s.calls++
	s.date = date
	return "Checked 0 inverters"
}

func newTestApp(checker Checker) *fiber.App {
	app := fiber.New()
	Register(app, checker)
	return app
}

func TestCheckWithDate(t *testing.T) {
	checker := &stubChecker{}
	app := newTestApp(checker)

	resp, err := app.Test(httptest.NewRequest("GET", "/check?date=2024-05-01", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Checked 0 inverters" {
		t.Fatalf("unexpected body %q", body)
	}
	if checker.date == nil || checker.date.Format(dateLayout) != "2024-05-01" {
		t.Fatalf("expected parsed date, got %v", checker.date)
	}
}

func TestCheckWithoutDate(t *testing.T) {
	checker := &stubChecker{}
	app := newTestApp(checker)

	resp, err := app.Test(httptest.NewRequest("POST", "/check", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || checker.calls != 1 || checker.date != nil {
		t.Fatalf("expected run for today, status=%d calls=%d date=%v", resp.StatusCode, checker.calls, checker.date)
	}
}

func TestCheckInvalidDate(t *testing.T) {
	checker := &stubChecker{}
	app := newTestApp(checker)

	resp, err := app.Test(httptest.NewRequest("GET", "/check?date=05/01/2024", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if checker.calls != 0 {
		t.Fatal("checker must not run for an invalid date")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(&stubChecker{})

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("health: status=%v err=%v", resp, err)
	}
	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("metrics: status=%v err=%v", resp, err)
	}
}
