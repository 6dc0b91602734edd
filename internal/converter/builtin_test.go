// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmakurin/redmine-reformat/internal/container"
	"github.com/dmakurin/redmine-reformat/internal/httputil"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

var issue42 = FieldContext{
	RecordType:   "Issue",
	RecordID:     42,
	Field:        "description",
	SourceFormat: "textile",
	TargetFormat: "markdown",
}

// fakeCommand uppercases stdin and records the argv it ran.
type fakeCommand struct {
	argv []string
	err  error
}

func (f *fakeCommand) Run(_ context.Context, argv []string, stdin io.Reader, stdout io.Writer) error {
	f.argv = argv
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, strings.ToUpper(string(data)))
	return err
}

// fakeRuntime is a container.Runtime that echoes stdin.
type fakeRuntime struct {
	missing   bool
	lastImage string
	lastArgs  []string
}

func (f *fakeRuntime) Name() string    { return "docker" }
func (f *fakeRuntime) Available() bool { return true }
func (f *fakeRuntime) ImageExists(image string) error {
	if f.missing {
		return fmt.Errorf("image %s not found in docker", image)
	}
	return nil
}
func (f *fakeRuntime) Run(_ context.Context, image string, args []string, stdin io.Reader, stdout io.Writer) error {
	f.lastImage, f.lastArgs = image, args
	_, err := io.Copy(stdout, stdin)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, "\n")
	return err
}

func newBuiltins(t *testing.T, deps Deps) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, deps))
	return r
}

func build(t *testing.T, r *Registry, name, opts string) Converter {
	t.Helper()
	conv, err := r.Build(name, Options(opts))
	require.NoError(t, err)
	return conv
}

func TestRegisterBuiltins_Names(t *testing.T) {
	r := newBuiltins(t, Deps{})
	assert.Equal(t, []string{
		NameCommand, NameContainer, NameIdentity, NameRewrite, NameTextileToMarkdown, NameWebService,
	}, r.Names())

	// Registering twice on one registry collides.
	var dup *DuplicateConverterError
	assert.ErrorAs(t, RegisterBuiltins(r, Deps{}), &dup)
}

func TestIdentity(t *testing.T) {
	r := newBuiltins(t, Deps{})
	out, err := build(t, r, NameIdentity, "").Convert(context.Background(), "h1. Same", issue42)
	require.NoError(t, err)
	assert.Equal(t, "h1. Same", out)

	_, err = r.Build(NameIdentity, Options(`{"x": 1}`))
	var invalid *InvalidOptionsError
	assert.ErrorAs(t, err, &invalid)
}

func TestRewrite(t *testing.T) {
	r := newBuiltins(t, Deps{})
	conv := build(t, r, NameRewrite, `{
		"rules": [
			{"pattern": "issue #(\\d+)", "replacement": "#$1"},
			{"pattern": "attachment:(\\S+)", "replacement": "/{{record_type}}/{{record_id}}/{{field}}/$1"}
		],
		"macros": {"toc": "toc_md", "child_pages": "children"}
	}`)

	in := "See issue #7 and attachment:a.png\n{{toc}} {{ child_pages(depth=2) }} {{toc_left}}"
	want := "See #7 and /Issue/42/description/a.png\n{{toc_md}} {{ children(depth=2) }} {{toc_left}}"

	out, err := conv.Convert(context.Background(), in, issue42)
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestRewrite_InvalidOptions(t *testing.T) {
	r := newBuiltins(t, Deps{})
	for _, opts := range []string{
		``,
		`{"rules": []}`,
		`{"rules": [{"pattern": "("}]}`,
		`{"rules": [{"pattern": ""}]}`,
		`{"macros": {"toc": ""}}`,
		`{"rules": [{"pattern": "a", "replace": "b"}]}`,
	} {
		_, err := r.Build(NameRewrite, Options(opts))
		var invalid *InvalidOptionsError
		assert.ErrorAs(t, err, &invalid, opts)
	}
}

func TestCommand(t *testing.T) {
	cmd := &fakeCommand{}
	r := newBuiltins(t, Deps{Command: cmd})
	conv := build(t, r, NameCommand, `{"command": ["pandoc", "-f", "textile", "-t", "gfm"], "timeout": "5s"}`)

	out, err := conv.Convert(context.Background(), "abc", issue42)
	require.NoError(t, err)
	assert.Equal(t, "ABC", out, "trailing newline trimmed when input had none")
	assert.Equal(t, []string{"pandoc", "-f", "textile", "-t", "gfm"}, cmd.argv)

	out, err = conv.Convert(context.Background(), "abc\n", issue42)
	require.NoError(t, err)
	assert.Equal(t, "ABC\n\n", out)
}

func TestCommand_Failure(t *testing.T) {
	boom := errors.New("exit status 64")
	r := newBuiltins(t, Deps{Command: &fakeCommand{err: boom}})
	conv := build(t, r, NameCommand, `{"command": ["pandoc"]}`)

	out, err := conv.Convert(context.Background(), "abc", issue42)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, out)
}

func TestCommand_InvalidOptions(t *testing.T) {
	r := newBuiltins(t, Deps{Command: &fakeCommand{}})
	for _, opts := range []string{``, `{"command": []}`, `{"command": ["x"], "timeout": "soon"}`, `{"command": ["x"], "timeout": "-1s"}`} {
		_, err := r.Build(NameCommand, Options(opts))
		var invalid *InvalidOptionsError
		assert.ErrorAs(t, err, &invalid, opts)
	}
}

func TestContainer(t *testing.T) {
	rt := &fakeRuntime{}
	var detections int32
	r := newBuiltins(t, Deps{Runtime: func() (container.Runtime, error) {
		atomic.AddInt32(&detections, 1)
		return rt, nil
	}})

	conv := build(t, r, NameContainer, `{"image": "pandoc/core:3.1", "args": ["-f", "textile"]}`)
	build(t, r, NameContainer, `{"image": "pandoc/core:3.1"}`)
	assert.Equal(t, int32(1), atomic.LoadInt32(&detections), "runtime detected once")

	out, err := conv.Convert(context.Background(), "h1. Title", issue42)
	require.NoError(t, err)
	assert.Equal(t, "h1. Title", out)
	assert.Equal(t, "pandoc/core:3.1", rt.lastImage)
	assert.Equal(t, []string{"-f", "textile"}, rt.lastArgs)
}

func TestContainer_BuildFailures(t *testing.T) {
	r := newBuiltins(t, Deps{Runtime: func() (container.Runtime, error) {
		return &fakeRuntime{missing: true}, nil
	}})
	_, err := r.Build(NameContainer, Options(`{"image": "pandoc/core:3.1"}`))
	var invalid *InvalidOptionsError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "docker pull pandoc/core:3.1")

	_, err = r.Build(NameContainer, Options(`{}`))
	assert.ErrorAs(t, err, &invalid)

	noRuntime := errors.New("no container runtime available")
	r = newBuiltins(t, Deps{Runtime: func() (container.Runtime, error) { return nil, noRuntime }})
	_, err = r.Build(NameContainer, Options(`{"image": "pandoc/core:3.1"}`))
	assert.ErrorIs(t, err, noRuntime)
}

func TestWebService(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "text/x-textile", req.Header.Get("Content-Type"))
		assert.Equal(t, "Issue", req.Header.Get("X-Reformat-Record-Type"))
		assert.Equal(t, "42", req.Header.Get("X-Reformat-Record-Id"))
		assert.Equal(t, "description", req.Header.Get("X-Reformat-Field"))
		assert.Equal(t, "markdown", req.Header.Get("X-Reformat-Target-Format"))
		body, _ := io.ReadAll(req.Body)
		fmt.Fprint(w, strings.ToUpper(string(body)))
	}))
	defer ts.Close()

	r := newBuiltins(t, Deps{HTTPClient: ts.Client()})
	conv := build(t, r, NameWebService, fmt.Sprintf(
		`{"url": %q, "contentType": "text/x-textile", "ratePerSecond": 100, "maxRetries": 2}`, ts.URL))

	out, err := conv.Convert(context.Background(), "h1. title", issue42)
	require.NoError(t, err)
	assert.Equal(t, "H1. TITLE", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebService_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "cannot parse textile", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	r := newBuiltins(t, Deps{HTTPClient: ts.Client()})
	conv := build(t, r, NameWebService, fmt.Sprintf(`{"url": %q}`, ts.URL))

	out, err := conv.Convert(context.Background(), "h1. title", issue42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "cannot parse textile")
	assert.Empty(t, out)
}

func TestWebService_InvalidOptions(t *testing.T) {
	r := newBuiltins(t, Deps{})
	for _, opts := range []string{
		``,
		`{"url": "ftp://example.com"}`,
		`{"url": "/relative"}`,
		`{"url": "http://example.com", "ratePerSecond": -1}`,
		`{"url": "http://example.com", "timeout": "x"}`,
	} {
		_, err := r.Build(NameWebService, Options(opts))
		var invalid *InvalidOptionsError
		assert.ErrorAs(t, err, &invalid, opts)
	}
}
