package onedrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/driveback/driveback/fs"
	"github.com/driveback/driveback/fs/config/configmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = `{"access_token":"xyzzy","token_type":"Bearer","expiry":"2099-01-01T00:00:00Z"}`

// testServer runs an httptest server for a fake Graph drive "td" and
// collects the requests made to it.
type testServer struct {
	t       *testing.T
	ts      *httptest.Server
	mu      sync.Mutex
	handler func(w http.ResponseWriter, r *http.Request) bool // per test routes, return true if handled
}

func (s *testServer) URL() string {
	return s.ts.URL
}

func (s *testServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil && handler(w, r) {
		return
	}
	// the root item needed by drive resolution
	if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root" {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"rootid","name":"root","folder":{"childCount":0}}`)
		return
	}
	s.t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
	http.Error(w, "unexpected request", http.StatusTeapot)
}

// newTestFs makes an Fs talking to a local test server
func newTestFs(t *testing.T, root string, config configmap.Simple) (*Fs, *testServer) {
	s := &testServer{t: t}
	s.ts = httptest.NewServer(http.HandlerFunc(s.serve))
	graphAPIEndpoint["test"] = s.ts.URL
	authEndpoint["test"] = s.ts.URL
	t.Cleanup(func() {
		delete(graphAPIEndpoint, "test")
		delete(authEndpoint, "test")
		s.ts.Close()
	})

	m := configmap.Simple{
		"auth_id":  "test-client",
		"region":   "test",
		"drive_id": "td",
		"token":    testToken,
	}
	for k, v := range config {
		m[k] = v
	}
	f, err := NewFs(context.Background(), "test", root, m)
	require.NoError(t, err)
	return f.(*Fs), s
}

func itemJSON(id, name string, size int64) string {
	return fmt.Sprintf(`{"id":%q,"name":%q,"size":%d,"file":{"mimeType":"application/octet-stream"},"lastModifiedDateTime":"2024-03-01T12:00:00Z"}`, id, name, size)
}

func TestPutSmall(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	var puts, sessions int
	var gotBody []byte
	var gotContentType string
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "PUT" && r.URL.Path == "/v1.0/drives/td/root:/a.bin:/content":
			puts++
			gotContentType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, itemJSON("X", "a.bin", 256))
			return true
		case strings.Contains(r.URL.Path, "createUploadSession"):
			sessions++
			return false
		}
		return false
	}

	src := fs.NewStaticObjectInfo("a.bin", time.Now(), int64(len(data)))
	obj, err := f.Put(context.Background(), bytes.NewReader(data), src)
	require.NoError(t, err)
	assert.Equal(t, 1, puts)
	assert.Equal(t, 0, sessions)
	assert.Equal(t, "application/octet-stream", gotContentType)
	assert.Equal(t, data, gotBody)
	assert.Equal(t, int64(256), obj.Size())
}

func TestPutCutoffBoundary(t *testing.T) {
	// one byte over the single part limit switches to the session path
	for _, test := range []struct {
		size         int64
		wantSessions int
		wantPuts     int
	}{
		{4_000_000, 0, 1},
		{4_000_001, 1, 0},
	} {
		var singleputs, sessions int
		f, s := newTestFs(t, "", configmap.Simple{"fragment_size": "2M"})
		s.handler = func(w http.ResponseWriter, r *http.Request) bool {
			switch {
			case r.Method == "PUT" && r.URL.Path == "/v1.0/drives/td/root:/b.bin:/content":
				singleputs++
				_, _ = io.Copy(io.Discard, r.Body)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, itemJSON("X", "b.bin", test.size))
				return true
			case r.Method == "POST" && r.URL.Path == "/v1.0/drives/td/root:/b.bin:/createUploadSession":
				sessions++
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"uploadUrl":%q,"nextExpectedRanges":["0-"]}`, s.URL()+"/up/sess")
				return true
			case r.Method == "PUT" && r.URL.Path == "/up/sess":
				_, _ = io.Copy(io.Discard, r.Body)
				w.Header().Set("Content-Type", "application/json")
				if strings.HasSuffix(r.Header.Get("Content-Range"), fmt.Sprintf("/%d", test.size)) &&
					strings.Contains(r.Header.Get("Content-Range"), fmt.Sprintf("-%d/", test.size-1)) {
					w.WriteHeader(http.StatusCreated)
					fmt.Fprint(w, itemJSON("X", "b.bin", test.size))
				} else {
					w.WriteHeader(http.StatusAccepted)
					fmt.Fprint(w, `{"nextExpectedRanges":["2097152-"]}`)
				}
				return true
			}
			return false
		}

		in := io.LimitReader(neverEndingReader('A'), test.size)
		src := fs.NewStaticObjectInfo("b.bin", time.Now(), test.size)
		_, err := f.Put(context.Background(), in, src)
		require.NoError(t, err)
		assert.Equal(t, test.wantSessions, sessions, "size %d", test.size)
		assert.Equal(t, test.wantPuts, singleputs, "size %d", test.size)
	}
}

// neverEndingReader reads an endless stream of one byte
type repeatByteReader byte

func neverEndingReader(b byte) io.Reader {
	return repeatByteReader(b)
}

func (r repeatByteReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func TestPutChunked(t *testing.T) {
	const size = 12 * 1024 * 1024
	var sessions int
	var ranges, auths []string
	var lengths []int64
	var received bytes.Buffer

	f, s := newTestFs(t, "", configmap.Simple{"fragment_size": "5M"})
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "POST" && r.URL.Path == "/v1.0/drives/td/root:/big.bin:/createUploadSession":
			sessions++
			assert.NotEmpty(t, r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "{}", string(body))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"uploadUrl":%q,"expirationDateTime":"2099-01-01T00:00:00Z","nextExpectedRanges":["0-"]}`, s.URL()+"/up/sess1")
			return true
		case r.Method == "PUT" && r.URL.Path == "/up/sess1":
			ranges = append(ranges, r.Header.Get("Content-Range"))
			auths = append(auths, r.Header.Get("Authorization"))
			lengths = append(lengths, r.ContentLength)
			_, _ = io.Copy(&received, r.Body)
			w.Header().Set("Content-Type", "application/json")
			if len(ranges) == 3 {
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, itemJSON("X", "big.bin", size))
			} else {
				w.WriteHeader(http.StatusAccepted)
				fmt.Fprint(w, `{"nextExpectedRanges":["5242880-"]}`)
			}
			return true
		}
		return false
	}

	data := bytes.Repeat([]byte{'A'}, size)
	src := fs.NewStaticObjectInfo("big.bin", time.Now(), size)
	_, err := f.Put(context.Background(), bytes.NewReader(data), src)
	require.NoError(t, err)

	assert.Equal(t, 1, sessions)
	assert.Equal(t, []string{
		"bytes 0-5242879/12582912",
		"bytes 5242880-10485759/12582912",
		"bytes 10485760-12582911/12582912",
	}, ranges)
	assert.Equal(t, []int64{5242880, 5242880, 2097152}, lengths)
	for _, auth := range auths {
		assert.Empty(t, auth, "fragment PUTs must not be signed")
	}
	assert.Equal(t, data, received.Bytes())
}

func TestPutChunkedRetry503(t *testing.T) {
	const size = 10 * 1024 * 1024
	var attempts []string
	var failed bool
	var failedAt, retriedAt time.Time
	var received bytes.Buffer

	f, s := newTestFs(t, "", configmap.Simple{
		"fragment_size":        "5M",
		"fragment_retry_delay": "20",
	})
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "POST" && r.URL.Path == "/v1.0/drives/td/root:/r.bin:/createUploadSession":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"uploadUrl":%q}`, s.URL()+"/up/sess2")
			return true
		case r.Method == "PUT" && r.URL.Path == "/up/sess2":
			rng := r.Header.Get("Content-Range")
			attempts = append(attempts, rng)
			// fail the second fragment once
			if strings.HasPrefix(rng, "bytes 5242880-") && !failed {
				failed = true
				failedAt = time.Now()
				_, _ = io.Copy(io.Discard, r.Body)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return true
			}
			if strings.HasPrefix(rng, "bytes 5242880-") && retriedAt.IsZero() {
				retriedAt = time.Now()
			}
			_, _ = io.Copy(&received, r.Body)
			w.Header().Set("Content-Type", "application/json")
			if strings.HasSuffix(rng, "-10485759/10485760") {
				w.WriteHeader(http.StatusCreated)
				fmt.Fprint(w, itemJSON("X", "r.bin", size))
			} else {
				w.WriteHeader(http.StatusAccepted)
				fmt.Fprint(w, `{"nextExpectedRanges":["5242880-"]}`)
			}
			return true
		}
		return false
	}

	data := bytes.Repeat([]byte{'B'}, size)
	src := fs.NewStaticObjectInfo("r.bin", time.Now(), size)
	_, err := f.Put(context.Background(), bytes.NewReader(data), src)
	require.NoError(t, err)

	// fragment 2 was sent twice with the same range
	require.Equal(t, []string{
		"bytes 0-5242879/10485760",
		"bytes 5242880-10485759/10485760",
		"bytes 5242880-10485759/10485760",
	}, attempts)
	// the retry backed off
	assert.GreaterOrEqual(t, retriedAt.Sub(failedAt), 20*time.Millisecond)
	// the retried fragment was replayed from its start offset
	assert.Equal(t, data, received.Bytes())
}

func TestPutChunkedSessionLost(t *testing.T) {
	const size = 12 * 1024 * 1024
	var deletes int
	var deleteAuth string

	f, s := newTestFs(t, "", configmap.Simple{"fragment_size": "5M"})
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "POST" && r.URL.Path == "/v1.0/drives/td/root:/l.bin:/createUploadSession":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"uploadUrl":%q}`, s.URL()+"/up/sess3")
			return true
		case r.Method == "PUT" && r.URL.Path == "/up/sess3":
			_, _ = io.Copy(io.Discard, r.Body)
			rng := r.Header.Get("Content-Range")
			if strings.HasPrefix(rng, "bytes 5242880-") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":{"code":"itemNotFound","message":"The upload session was not found"}}`)
				return true
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"nextExpectedRanges":["5242880-"]}`)
			return true
		case r.Method == "DELETE" && r.URL.Path == "/up/sess3":
			deletes++
			deleteAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
			return true
		}
		return false
	}

	data := bytes.Repeat([]byte{'C'}, size)
	src := fs.NewStaticObjectInfo("l.bin", time.Now(), size)
	_, err := f.Put(context.Background(), bytes.NewReader(data), src)
	require.Error(t, err)

	var sessionErr *UploadSessionError
	require.True(t, errors.As(err, &sessionErr), "expected UploadSessionError, got %T", err)
	assert.Equal(t, 1, sessionErr.FragmentIndex)
	assert.Equal(t, 3, sessionErr.FragmentCount)
	assert.Equal(t, 1, deletes)
	assert.Empty(t, deleteAuth, "session cancel must not be signed")
}

func TestListPagination(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/items/rootid/children":
			assert.Equal(t, "1000", r.URL.Query().Get("$top"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"value":[%s,%s,{"id":"gone","name":"gone.bin","size":1,"file":{},"deleted":{}}],"@odata.nextLink":%q}`,
				itemJSON("a", "a.bin", 1), itemJSON("b", "b.bin", 2), s.URL()+"/page2")
			return true
		case r.Method == "GET" && r.URL.Path == "/page2":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"value":[%s]}`, itemJSON("c", "c.bin", 3))
			return true
		}
		return false
	}

	entries, err := f.List(context.Background(), "")
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Remote())
	}
	assert.Equal(t, []string{"a.bin", "b.bin", "c.bin"}, names)
}

func TestListDirNotFound(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/items/rootid:/missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"itemNotFound","message":"not found"}}`)
			return true
		}
		return false
	}

	_, err := f.List(context.Background(), "missing")
	assert.ErrorIs(t, err, fs.ErrorDirNotFound)
}

func TestNewObjectNotFound(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root:/missing.bin" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"itemNotFound","message":"not found"}}`)
			return true
		}
		return false
	}

	_, err := f.NewObject(context.Background(), "missing.bin")
	assert.ErrorIs(t, err, fs.ErrorObjectNotFound)
}

func TestOpen(t *testing.T) {
	payload := []byte("hello remote world")
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root:/h.bin":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, itemJSON("h", "h.bin", int64(len(payload))))
			return true
		case r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root:/h.bin:/content":
			_, _ = w.Write(payload)
			return true
		}
		return false
	}

	obj, err := f.NewObject(context.Background(), "h.bin")
	require.NoError(t, err)
	in, err := obj.Open(context.Background())
	require.NoError(t, err)
	got, err := io.ReadAll(in)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	assert.Equal(t, payload, got)
}

func TestRemove(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	var deletes int
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root:/d.bin":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, itemJSON("d", "d.bin", 4))
			return true
		case r.Method == "DELETE" && r.URL.Path == "/v1.0/drives/td/root:/d.bin":
			deletes++
			w.WriteHeader(http.StatusNoContent)
			return true
		}
		return false
	}

	obj, err := f.NewObject(context.Background(), "d.bin")
	require.NoError(t, err)
	require.NoError(t, obj.Remove(context.Background()))
	assert.Equal(t, 1, deletes)
}

func TestRename(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	var gotPatch string
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root:/old.bin":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, itemJSON("o", "old.bin", 4))
			return true
		case r.Method == "PATCH" && r.URL.Path == "/v1.0/drives/td/root:/old.bin":
			body, _ := io.ReadAll(r.Body)
			gotPatch = string(body)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, itemJSON("o", "new.bin", 4))
			return true
		}
		return false
	}

	obj, err := f.NewObject(context.Background(), "old.bin")
	require.NoError(t, err)
	renamer := obj.(fs.Renamer)
	require.NoError(t, renamer.Rename(context.Background(), "new.bin"))
	assert.Equal(t, `{"name":"new.bin"}`, gotPatch)
	assert.Equal(t, "new.bin", obj.Remote())
}

func TestAbout(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"td","driveType":"personal","quota":{"total":1000,"used":400,"remaining":600,"deleted":0}}`)
			return true
		}
		return false
	}

	usage, err := f.About(context.Background())
	require.NoError(t, err)
	require.NotNil(t, usage.Total)
	assert.Equal(t, int64(1000), *usage.Total)
	require.NotNil(t, usage.Free)
	assert.Equal(t, int64(600), *usage.Free)
}

func TestAboutUnknownQuota(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"td","driveType":"documentLibrary","quota":{"total":0,"used":0,"remaining":0,"deleted":0}}`)
			return true
		}
		return false
	}

	usage, err := f.About(context.Background())
	require.NoError(t, err)
	// all zeros means the drive misreports, so everything is unknown
	assert.Nil(t, usage.Total)
	assert.Nil(t, usage.Used)
	assert.Nil(t, usage.Free)
}

func TestTestRootMissing(t *testing.T) {
	f, s := newTestFs(t, "backup", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td/root:/backup" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"itemNotFound","message":"not found"}}`)
			return true
		}
		return false
	}

	err := f.Test(context.Background())
	assert.ErrorIs(t, err, fs.ErrorDirNotFound)
}

func TestMkdirWalksPath(t *testing.T) {
	f, s := newTestFs(t, "backup", nil)
	var created []string
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == "GET" && strings.HasPrefix(r.URL.Path, "/v1.0/drives/td/items/") && strings.Contains(r.URL.Path, ":/"):
			// no intermediate directories exist yet
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"itemNotFound","message":"not found"}}`)
			return true
		case r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/children"):
			body, _ := io.ReadAll(r.Body)
			created = append(created, string(body))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"dir-%d","name":"x","folder":{"childCount":0}}`, len(created))
			return true
		}
		return false
	}

	require.NoError(t, f.Mkdir(context.Background(), "photos"))
	require.Len(t, created, 2)
	assert.Contains(t, created[0], `"name":"backup"`)
	assert.Contains(t, created[0], `"folder":{`)
	assert.Contains(t, created[1], `"name":"photos"`)
}

func TestRetryAfterThrottlesNextRequest(t *testing.T) {
	f, s := newTestFs(t, "", nil)
	s.handler = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == "GET" && r.URL.Path == "/v1.0/drives/td" {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"td","quota":{"total":1,"used":1,"remaining":0,"deleted":0}}`)
			return true
		}
		return false
	}

	_, err := f.About(context.Background())
	require.NoError(t, err)

	// the next request to the same host must wait out the Retry-After
	start := time.Now()
	_, err = f.About(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}
