package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/render"
	"github.com/starford/mailblog/internal/store"
	"github.com/starford/mailblog/internal/testutil"
)

func TestBase26(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, ""},
		{1, "b"},
		{25, "z"},
		{26, "ba"},
		{27, "bb"},
		{701, "zz"},
		{702, "baa"},
	}
	for _, tt := range tests {
		if got := Base26(tt.n); got != tt.want {
			t.Errorf("Base26(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		subject string
		id      int64
		want    string
	}{
		{"Test Post", 1, "test-post-b.html"},
		{"  Hello, World!  ", 26, "hello-world-ba.html"},
		{"snake_case stays", 2, "snake-case-stays-c.html"},
		{"Café au lait", 3, "café-au-lait-d.html"},
		{"???", 0, "-.html"},
	}
	for _, tt := range tests {
		if got := Filename(tt.subject, tt.id); got != tt.want {
			t.Errorf("Filename(%q, %d) = %q, want %q", tt.subject, tt.id, got, tt.want)
		}
	}
}

type call struct {
	name     string
	bindings map[string]any
}

type fakeRenderer struct {
	calls   []call
	fail    string
	failErr error
}

func (f *fakeRenderer) Render(name string, bindings map[string]any) ([]byte, error) {
	f.calls = append(f.calls, call{name, bindings})
	if name == f.fail {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, apperr.ErrRender
	}
	return []byte(name), nil
}

func (f *fakeRenderer) byName(name string) []call {
	var out []call
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeReader struct {
	entries []store.Entry
}

func (f fakeReader) AccountEntries(context.Context, string) ([]store.Entry, error) {
	return f.entries, nil
}

func (f fakeReader) RecentEntries(_ context.Context, limit int) ([]store.Entry, error) {
	return f.entries, nil
}

func (f fakeReader) NewAccountEntries(_ context.Context, limit int) ([]store.Entry, error) {
	return f.entries, nil
}

var ian = store.Account{Email: "ian@haywood.id.au", Name: "ian", Author: "Ian Haywood"}

func entry(id int64, subject string, day int) store.Entry {
	return store.Entry{
		Account: ian,
		Post: store.Post{
			ID: id, Email: ian.Email, Subject: subject,
			Time: time.Date(2021, 6, day, 0, 0, 0, 0, time.UTC),
		},
	}
}

var site = Site{BaseURL: "/blog", Author: "Site Owner", Title: "Main Page"}

func TestPublishAccount_PrevNext(t *testing.T) {
	root, out := testutil.TestOutput(t)
	r := &fakeRenderer{}
	rd := fakeReader{entries: []store.Entry{entry(1, "one", 1), entry(2, "two", 2), entry(3, "three", 3)}}

	if err := New(r, out, site, nil).PublishAccount(context.Background(), rd, ian); err != nil {
		t.Fatalf("PublishAccount: %v", err)
	}

	pages := r.byName("page.html")
	if len(pages) != 3 {
		t.Fatalf("page renders = %d, want 3", len(pages))
	}
	subject := func(v any) string {
		if v == nil {
			return "<none>"
		}
		return v.(Doc).Post.Subject
	}
	want := [][2]string{{"<none>", "two"}, {"one", "three"}, {"two", "<none>"}}
	for i, c := range pages {
		if got := [2]string{subject(c.bindings["prev"]), subject(c.bindings["next"])}; got != want[i] {
			t.Errorf("page %d prev/next = %v, want %v", i, got, want[i])
		}
		if c.bindings["feed_url"] != "/blog/ian/feed.xml" || c.bindings["index_url"] != "/blog/ian/index.html" {
			t.Errorf("page %d urls = %v %v", i, c.bindings["feed_url"], c.bindings["index_url"])
		}
	}

	idx := r.byName("index.html")
	if len(idx) != 1 || idx[0].bindings["title"] != "Articles for Ian Haywood's blog" || idx[0].bindings["tags"] != "blog" {
		t.Errorf("index bindings = %+v", idx)
	}
	if len(r.byName("user-feed.xml")) != 1 || len(r.byName("main.html")) != 1 {
		t.Errorf("calls = %v", r.calls)
	}

	if got := testutil.ReadFile(t, root, "ian", "two-c.html"); got != "page.html" {
		t.Errorf("two-c.html = %q", got)
	}
	if got := testutil.ReadFile(t, root, "ian", "feed.xml"); got != "user-feed.xml" {
		t.Errorf("feed.xml = %q", got)
	}
	if got := testutil.ReadFile(t, root, "index.html"); got != "main.html" {
		t.Errorf("index.html = %q", got)
	}
}

func TestPublishAccount_DuplicateFilename(t *testing.T) {
	_, out := testutil.TestOutput(t)
	r := &fakeRenderer{}
	// Same id, subjects equal once punctuation is stripped.
	rd := fakeReader{entries: []store.Entry{entry(5, "Hello!", 1), entry(5, "Hello?", 2)}}

	err := New(r, out, site, nil).PublishAccount(context.Background(), rd, ian)
	if !errors.Is(err, apperr.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("rendered before the uniqueness check: %v", r.calls)
	}
}

func TestPublishAccount_RenderFailureStops(t *testing.T) {
	_, out := testutil.TestOutput(t)
	r := &fakeRenderer{fail: "index.html"}
	rd := fakeReader{entries: []store.Entry{entry(1, "one", 1)}}

	err := New(r, out, site, nil).PublishAccount(context.Background(), rd, ian)
	if !errors.Is(err, apperr.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}
	if len(r.byName("main.html")) != 0 {
		t.Error("front page rendered after failure")
	}
}

func TestPublishAccount_RenderFailureWritesNothing(t *testing.T) {
	root, out := testutil.TestOutput(t)
	r := &fakeRenderer{fail: "main.html"}
	rd := fakeReader{entries: []store.Entry{entry(1, "one", 1), entry(2, "two", 2)}}

	err := New(r, out, site, nil).PublishAccount(context.Background(), rd, ian)
	if !errors.Is(err, apperr.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}
	if len(r.byName("page.html")) != 2 {
		t.Fatalf("calls = %v", r.calls)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("artifacts written despite failure: %v", entries)
	}
}

func TestPublishAccount_RenderErrorIsRenderKind(t *testing.T) {
	_, out := testutil.TestOutput(t)
	boom := errors.New("boom")
	r := &fakeRenderer{fail: "user-feed.xml", failErr: boom}
	rd := fakeReader{entries: []store.Entry{entry(1, "one", 1)}}

	err := New(r, out, site, nil).PublishAccount(context.Background(), rd, ian)
	if !errors.Is(err, apperr.ErrRender) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrRender wrapping boom", err)
	}
	if got := apperr.Kind(err); got != "RenderError" {
		t.Errorf("Kind = %q, want RenderError", got)
	}
}

func TestRenderThenWrite(t *testing.T) {
	ctx := context.Background()
	root, out := testutil.TestOutput(t)
	p := New(&fakeRenderer{}, out, site, nil)
	rd := fakeReader{entries: []store.Entry{entry(1, "one", 1)}}

	var b Batch
	if err := p.RenderAccount(ctx, rd, ian, &b); err != nil {
		t.Fatalf("RenderAccount: %v", err)
	}
	if err := p.RenderNewAccounts(ctx, rd, &b); err != nil {
		t.Fatalf("RenderNewAccounts: %v", err)
	}
	// page, index, feed, front page, new-users feed
	if b.Len() != 5 {
		t.Fatalf("batch len = %d, want 5", b.Len())
	}
	if _, err := os.Stat(filepath.Join(root, "ian")); !os.IsNotExist(err) {
		t.Fatalf("rendering wrote to the output: %v", err)
	}
	if err := p.Write(ctx, &b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := testutil.ReadFile(t, root, "new-feed.xml"); got != "new-feed.xml" {
		t.Errorf("new-feed.xml = %q", got)
	}
}

func TestPublishNewAccounts(t *testing.T) {
	root, out := testutil.TestOutput(t)
	r := &fakeRenderer{}
	rd := fakeReader{entries: []store.Entry{entry(1, "one", 1), entry(2, "two", 7)}}

	if err := New(r, out, site, nil).PublishNewAccounts(context.Background(), rd); err != nil {
		t.Fatalf("PublishNewAccounts: %v", err)
	}
	c := r.byName("new-feed.xml")
	if len(c) != 1 {
		t.Fatalf("calls = %v", r.calls)
	}
	if got := c[0].bindings["updated"].(time.Time); got.Day() != 7 {
		t.Errorf("updated = %v", got)
	}
	if got := testutil.ReadFile(t, root, "new-feed.xml"); got != "new-feed.xml" {
		t.Errorf("new-feed.xml = %q", got)
	}
}

func TestValidAccountName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ian", true},
		{"ian_haywood.id.au", true},
		{"Ian.Haywood+blog", true},
		{"jörg", true},
		{".", false},
		{"..", false},
		{"", false},
		{".hidden", false},
		{"a/b", false},
		{"a\\b", false},
		{"index.html", false},
		{"INDEX.HTML", false},
		{"new-feed.xml", false},
		{"feed.xml", false},
		{strings.Repeat("a", 256), false},
	}
	for _, tt := range tests {
		if got := ValidAccountName(tt.name); got != tt.want {
			t.Errorf("ValidAccountName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPublishAccount_RejectsUnsafeName(t *testing.T) {
	root, out := testutil.TestOutput(t)
	r := &fakeRenderer{}
	dot := store.Account{Email: ".@evil.com", Name: "."}
	rd := fakeReader{entries: []store.Entry{{Account: dot, Post: store.Post{ID: 2, Subject: "pwn"}}}}

	err := New(r, out, site, nil).PublishAccount(context.Background(), rd, dot)
	if !errors.Is(err, apperr.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("rendered for an unsafe name: %v", r.calls)
	}
	if entries, _ := os.ReadDir(root); len(entries) != 0 {
		t.Errorf("root written: %v", entries)
	}
}

func TestURL_AbsoluteBase(t *testing.T) {
	p := New(&fakeRenderer{}, nil, Site{BaseURL: "https://example.org/blog/"}, nil)
	if got := p.url("ian", "feed.xml"); got != "https://example.org/blog/ian/feed.xml" {
		t.Errorf("url = %q", got)
	}
}

// Renders real templates from real store rows.
func TestPublishAccount_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s := testutil.TestStore(t)
	root, out := testutil.TestOutput(t)
	tmpl, err := render.New()
	if err != nil {
		t.Fatal(err)
	}
	p := New(tmpl, out, site, nil)

	err = s.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateAccount(ctx, ian); err != nil {
			return err
		}
		for i, subj := range []string{"First post", "Second post"} {
			if err := tx.InsertPost(ctx, store.Post{
				Email: ian.Email, Subject: subj, Content: "<p>body " + subj + "</p>",
				Time: time.Date(2021, 6, i+1, 9, 0, 0, 0, time.UTC),
			}); err != nil {
				return err
			}
		}
		return p.PublishAccount(ctx, tx, ian)
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	first := testutil.ReadFile(t, root, "ian", "first-post-b.html")
	if !strings.Contains(first, "<p>body First post</p>") || !strings.Contains(first, `href="/blog/ian/second-post-c.html"`) {
		t.Errorf("first page:\n%s", first)
	}
	index := testutil.ReadFile(t, root, "ian", "index.html")
	if !strings.Contains(index, "Articles for Ian Haywood&#39;s blog") {
		t.Errorf("index:\n%s", index)
	}
	feed := testutil.ReadFile(t, root, "ian", "feed.xml")
	if !strings.Contains(feed, "<id>/blog/ian/first-post-b.html</id>") {
		t.Errorf("feed:\n%s", feed)
	}
	front := testutil.ReadFile(t, root, "index.html")
	if strings.Index(front, "Second post") > strings.Index(front, "First post") {
		t.Errorf("front page not newest first:\n%s", front)
	}
}
