package preview

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testOutput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ian"), 0o755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "index.html"), []byte("front page"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "ian", "test-post-b.html"), []byte("a post"), 0o644)
	return dir
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ServesUnderBaseURL(t *testing.T) {
	h := NewRouter(testOutput(t), "/blog", "")

	rec := get(t, h, "/blog/ian/test-post-b.html", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "a post" {
		t.Errorf("body = %q", body)
	}

	rec = get(t, h, "/blog/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "front page") {
		t.Errorf("front page: status = %d body = %q", rec.Code, rec.Body.String())
	}

	rec = get(t, h, "/", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/blog/" {
		t.Errorf("root redirect: status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}

	if rec := get(t, h, "/blog/nobody/x.html", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", rec.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(testOutput(t), "/blog", "secret")
	rec := get(t, h, "/health/live", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health: status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_Token(t *testing.T) {
	h := NewRouter(testOutput(t), "/blog", "secret")
	if rec := get(t, h, "/blog/ian/test-post-b.html", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/blog/ian/test-post-b.html", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}
	if rec := get(t, h, "/blog/ian/test-post-b.html", "secret"); rec.Code != http.StatusOK {
		t.Errorf("good token status = %d, want 200", rec.Code)
	}
}
