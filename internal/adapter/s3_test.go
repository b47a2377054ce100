package adapter

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type s3Object struct {
	Key          string
	LastModified string
	ETag         string
	Size         int
	StorageClass string
}

type s3Prefix struct {
	Prefix string
}

type s3ListResult struct {
	XMLName        xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name           string
	Prefix         string
	Delimiter      string
	MaxKeys        int
	KeyCount       int
	IsTruncated    bool
	Contents       []s3Object
	CommonPrefixes []s3Prefix
}

// fakeS3 serves the subset of the S3 API used by S3Store for one bucket
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	puts    []string
}

func newFakeS3(bucket string, keys ...string) *fakeS3 {
	f := &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
	for _, key := range keys {
		f.objects[key] = nil
	}
	return f
}

func writeS3Error(w http.ResponseWriter, status int, code, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><Key>%s</Key></Error>`, code, code, key)
}

// decodeChunked strips aws-chunked framing from a streaming signed upload
func decodeChunked(body io.Reader) ([]byte, error) {
	r := bufio.NewReader(body)
	var out []byte
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk header %q: %w", line, err)
		}
		if size == 0 {
			return out, nil
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if _, err := r.Discard(2); err != nil {
			return nil, err
		}
	}
}

func (f *fakeS3) list(w http.ResponseWriter, prefix, delimiter string) {
	result := s3ListResult{Name: f.bucket, Prefix: prefix, Delimiter: delimiter, MaxKeys: 1000}

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				common := prefix + rest[:idx+len(delimiter)]
				if !seen[common] {
					seen[common] = true
					result.CommonPrefixes = append(result.CommonPrefixes, s3Prefix{Prefix: common})
				}
				continue
			}
		}
		result.Contents = append(result.Contents, s3Object{
			Key:          key,
			LastModified: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"etag"`,
			Size:         len(f.objects[key]),
			StorageClass: "STANDARD",
		})
	}
	result.KeyCount = len(result.Contents) + len(result.CommonPrefixes)

	w.Header().Set("Content-Type", "application/xml")
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(result)
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "")
		return
	}
	query := r.URL.Query()

	switch {
	case key == "" && query.Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)

	case key == "" && r.Method == http.MethodGet && query.Get("list-type") == "2":
		f.list(w, query.Get("prefix"), query.Get("delimiter"))

	case key != "" && r.Method == http.MethodPut:
		var data []byte
		var err error
		if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			data, err = decodeChunked(r.Body)
		} else {
			data, err = io.ReadAll(r.Body)
		}
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody", key)
			return
		}
		f.objects[key] = data
		f.puts = append(f.puts, key)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)

	case key != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey", key)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(data)
		}

	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented", key)
	}
}

func (f *fakeS3) putKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func newTestS3Store(t *testing.T, fake *fakeS3) *S3Store {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := NewS3Store(server.URL+"/"+fake.bucket, "access", "secret")
	if err != nil {
		t.Fatalf("Failed to create S3 store: %v", err)
	}
	return store
}

func TestS3Store_EnsureDirectoryCreatesMissingMarkers(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("tabstash", "a/")
	store := newTestS3Store(t, fake)

	if err := store.EnsureDirectory(ctx, "/a/b/c"); err != nil {
		t.Fatalf("EnsureDirectory failed: %v", err)
	}
	want := []string{"a/b/", "a/b/c/"}
	if got := fake.putKeys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected markers %v, got %v", want, got)
	}

	if err := store.EnsureDirectory(ctx, "/a/b/c"); err != nil {
		t.Fatalf("Second EnsureDirectory failed: %v", err)
	}
	if got := fake.putKeys(); len(got) != 2 {
		t.Errorf("Expected no further markers, got %v", got)
	}

	if ok, err := store.DirectoryExists(ctx, "/a/b"); err != nil || !ok {
		t.Errorf("Expected /a/b to exist, got %v, %v", ok, err)
	}
	if ok, err := store.DirectoryExists(ctx, "/x"); err != nil || ok {
		t.Errorf("Expected /x to be absent, got %v, %v", ok, err)
	}
}

func TestS3Store_MembershipIsExact(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("tabstash", "a/", "a/bc", "a/bd/x.json")
	store := newTestS3Store(t, fake)

	for _, p := range []string{"/a/b", "/a/bd/x"} {
		if ok, err := store.FileExists(ctx, p); err != nil || ok {
			t.Errorf("Expected %s to be absent, got %v, %v", p, ok, err)
		}
	}
	if ok, err := store.FileExists(ctx, "/a/bc"); err != nil || !ok {
		t.Errorf("Expected /a/bc to exist, got %v, %v", ok, err)
	}
	if ok, err := store.DirectoryExists(ctx, "/a/bd"); err != nil || !ok {
		t.Errorf("Expected prefix /a/bd to count as a directory, got %v, %v", ok, err)
	}
}

func TestS3Store_ReadWrite(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("tabstash")
	store := newTestS3Store(t, fake)

	if err := store.EnsureDirectory(ctx, "/__tabstash__"); err != nil {
		t.Fatalf("EnsureDirectory failed: %v", err)
	}

	file := "/__tabstash__/__tabstash_tags__.json"
	if ok, err := store.FileExists(ctx, file); err != nil || ok {
		t.Fatalf("Expected file to be absent, got %v, %v", ok, err)
	}
	if _, err := store.ReadFile(ctx, file); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	content := `[{"tagId":"t1","tagName":"Work","groupList":[]}]`
	if err := store.WriteFile(ctx, file, []byte(content)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if ok, err := store.FileExists(ctx, file); err != nil || !ok {
		t.Fatalf("Expected file to exist, got %v, %v", ok, err)
	}
	data, err := store.ReadFile(ctx, file)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("Expected %q, got %q", content, data)
	}

	fake.mu.Lock()
	stored := string(fake.objects["__tabstash__/__tabstash_tags__.json"])
	fake.mu.Unlock()
	if stored != content {
		t.Errorf("Expected object body %q, got %q", content, stored)
	}
}
