package microdraw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer serves a dataset definition at /dataset and numSlices slices
// at /api, each slice holding one region named after its index
func fakeServer(t *testing.T, numSlices int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/dataset", func(w http.ResponseWriter, r *http.Request) {
		sources := make([]string, numSlices)
		for i := range sources {
			sources[i] = fmt.Sprintf(`"tile%d.dzi"`, i)
		}
		fmt.Fprintf(w, `{"pixelsPerMeter":1000000,"tileSources":[%s]}`, join(sources))
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		s, err := strconv.Atoi(r.URL.Query().Get("slice"))
		if err != nil {
			http.Error(w, "bad slice", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `[{"annotation":{"name":"s%d","path":["Path",{"segments":[[0,0],[%d,0],[%d,%d]]}]}}]`, s, s+1, s+1, s+1)
	})
	mux.HandleFunc("/project/json/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":%q,"files":[]}`, r.URL.Path[len("/project/json/"):])
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func join(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func testOptions(srv *httptest.Server) Options {
	opts := DefaultOptions()
	opts.BaseURL = srv.URL
	opts.Token = "secret"
	opts.RequestsPerSecond = 0
	return opts
}

func TestDownloadAllKeepsSliceOrder(t *testing.T) {
	srv := fakeServer(t, 9)
	client := NewClient(testOptions(srv), nil)

	ds, err := client.DownloadAll(context.Background(), srv.URL+"/dataset", "proj")
	require.NoError(t, err)
	require.NoError(t, ds.Validate())

	assert.Equal(t, 9, ds.NumSlices)
	assert.Equal(t, 1e6, ds.PixelsPerMeter)
	for s, slice := range ds.Slices {
		require.Len(t, slice, 1)
		assert.Contains(t, string(slice[0]), fmt.Sprintf(`"name":"s%d"`, s))
	}
}

func TestDownloadProject(t *testing.T) {
	srv := fakeServer(t, 0)
	client := NewClient(testOptions(srv), nil)

	prj, err := client.DownloadProject(context.Background(), "brains")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"brains","files":[]}`, string(prj))
}

func TestDownloadSliceForbiddenIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(testOptions(srv), nil)
	_, err := client.DownloadSlice(context.Background(), "src", "proj", 0)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.NotContains(t, err.Error(), "secret")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloadSliceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewClient(testOptions(srv), nil)
	regions, err := client.DownloadSlice(context.Background(), "src", "proj", 4)
	require.NoError(t, err)
	assert.NotNil(t, regions)
	assert.Empty(t, regions)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadSliceGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := testOptions(srv)
	opts.MaxRetries = 1
	_, err := NewClient(opts, nil).DownloadSlice(context.Background(), "src", "proj", 0)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadDatasetRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	}))
	defer srv.Close()

	_, err := NewClient(testOptions(srv), nil).DownloadDataset(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestSliceURL(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://example.org", Token: "t"}, nil)
	assert.Equal(t, "http://example.org/api?project=p&slice=3&source=s&token=t", client.SliceURL("s", "p", 3))
	assert.Equal(t, "http://example.org/project/json/p?token=t", client.ProjectURL("p"))
}
