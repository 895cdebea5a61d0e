package blogservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/ingest"
	"github.com/starford/mailblog/internal/markdown"
	"github.com/starford/mailblog/internal/publish"
	"github.com/starford/mailblog/internal/render"
	"github.com/starford/mailblog/internal/store"
	"github.com/starford/mailblog/internal/testutil"
)

const date = "Mon, 31 May 2021 20:02:04 +1000"

type failingRenderer struct{}

func (failingRenderer) Render(name string, _ map[string]any) ([]byte, error) {
	return nil, apperr.ErrRender
}

// failOn renders with the real templates except for one name.
type failOn struct {
	name string
	next publish.Renderer
}

func (f failOn) Render(name string, bindings map[string]any) ([]byte, error) {
	if name == f.name {
		return nil, errors.New("boom")
	}
	return f.next.Render(name, bindings)
}

func newService(t *testing.T, r publish.Renderer) (*Service, *store.Store, string) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	db := testutil.TestStore(t)
	root, out := testutil.TestOutput(t)
	if r == nil {
		tm, err := render.New()
		if err != nil {
			t.Fatal(err)
		}
		r = tm
	}
	pub := publish.New(r, out, publish.Site{BaseURL: "/blog", Author: "Owner", Title: "Main Page"}, logger)
	return NewService(db, ingest.New(markdown.New(), logger), pub, logger), db, root
}

func exists(t *testing.T, elem ...string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(elem...))
	return err == nil
}

func TestProcessMail_NewThenExistingAccount(t *testing.T) {
	ctx := context.Background()
	svc, _, root := newService(t, nil)

	res, err := svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage("Ian Haywood <ian@haywood.id.au>", "Test Post", date, "# header\n\na markdown paragraph\n")))
	if err != nil {
		t.Fatalf("ProcessMail: %v", err)
	}
	if !res.NewAccount || res.Account.Name != "ian" {
		t.Errorf("result = %+v", res)
	}
	for _, f := range [][]string{
		{root, "ian", "test-post-b.html"},
		{root, "ian", "index.html"},
		{root, "ian", "feed.xml"},
		{root, "index.html"},
		{root, "new-feed.xml"},
	} {
		if !exists(t, f...) {
			t.Errorf("missing artifact %v", f[1:])
		}
	}
	page := testutil.ReadFile(t, root, "ian", "test-post-b.html")
	if !strings.Contains(page, "<h1>header</h1>") {
		t.Errorf("page:\n%s", page)
	}

	if err := os.Remove(filepath.Join(root, "new-feed.xml")); err != nil {
		t.Fatal(err)
	}
	res, err = svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage("ian@haywood.id.au", "Second", date, "more")))
	if err != nil {
		t.Fatalf("ProcessMail: %v", err)
	}
	if res.NewAccount {
		t.Error("existing sender created a new account")
	}
	if exists(t, root, "new-feed.xml") {
		t.Error("new-users feed rendered for an existing account")
	}
	prev := testutil.ReadFile(t, root, "ian", "test-post-b.html")
	if !strings.Contains(prev, `href="/blog/ian/second-c.html"`) {
		t.Errorf("first page not linked to the second:\n%s", prev)
	}
}

func TestProcessMail_RenderFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newService(t, failingRenderer{})

	_, err := svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage("ian@haywood.id.au", "Test Post", date, "hi")))
	if !errors.Is(err, apperr.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}
	if got := apperr.ExitCode(err); got != apperr.ExitSoftware {
		t.Errorf("ExitCode = %d, want %d", got, apperr.ExitSoftware)
	}

	err = db.InTx(ctx, func(tx *store.Tx) error {
		_, found, err := tx.AccountByEmail(ctx, "ian@haywood.id.au")
		if found {
			t.Error("account committed despite render failure")
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestProcessMail_LateRenderFailureLeavesNoArtifacts(t *testing.T) {
	ctx := context.Background()
	tm, err := render.New()
	if err != nil {
		t.Fatal(err)
	}
	svc, db, root := newService(t, failOn{name: "new-feed.xml", next: tm})

	_, err = svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage("alice@example.com", "hello", date, "hi")))
	if !errors.Is(err, apperr.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}
	if got := apperr.Kind(err); got != "RenderError" {
		t.Errorf("Kind = %q, want RenderError", got)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("artifacts left for a rolled-back post: %v", entries)
	}
	err = db.InTx(ctx, func(tx *store.Tx) error {
		_, found, err := tx.AccountByEmail(ctx, "alice@example.com")
		if found {
			t.Error("account committed despite render failure")
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestProcessMail_DotSenderCannotClaimRoot(t *testing.T) {
	ctx := context.Background()
	svc, _, root := newService(t, nil)
	if _, err := svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage("alice@example.com", "hello", date, "hi"))); err != nil {
		t.Fatal(err)
	}
	front := testutil.ReadFile(t, root, "index.html")

	_, err := svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage(`"."@evil.com`, "pwn", date, "owned")))
	if !errors.Is(err, apperr.ErrAccountResolution) {
		t.Fatalf("err = %v, want ErrAccountResolution", err)
	}
	if got := testutil.ReadFile(t, root, "index.html"); got != front {
		t.Error("front page rewritten by a rejected sender")
	}
	if exists(t, root, "feed.xml") || exists(t, root, "pwn-c.html") {
		t.Error("account artifacts written into the output root")
	}
	if err := svc.DeleteAccount(ctx, "."); !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Errorf("delete err = %v, want ErrAccountNotFound", err)
	}
	if !exists(t, root, "new-feed.xml") {
		t.Error("new-feed.xml removed")
	}
}

func TestDeleteAndRefresh(t *testing.T) {
	ctx := context.Background()
	svc, _, root := newService(t, nil)
	if _, err := svc.ProcessMail(ctx, strings.NewReader(
		testutil.PlainMessage("bob@example.com", "Hello", date, "hi"))); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "bob", "index.html")); err != nil {
		t.Fatal(err)
	}
	if err := svc.RefreshAccount(ctx, "bob"); err != nil {
		t.Fatalf("RefreshAccount: %v", err)
	}
	if !exists(t, root, "bob", "index.html") {
		t.Error("refresh did not regenerate index.html")
	}

	if err := svc.DeleteAccount(ctx, "bob"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if exists(t, root, "bob") {
		t.Error("bob/ still exists")
	}
	if err := svc.DeleteAccount(ctx, "bob"); !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Errorf("second delete err = %v, want ErrAccountNotFound", err)
	}
	if err := svc.RefreshAccount(ctx, "bob"); !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Errorf("refresh err = %v, want ErrAccountNotFound", err)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	svc, _, _ := newService(t, nil)
	if err := svc.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}
