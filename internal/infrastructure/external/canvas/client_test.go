package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demodigi-hub/results-hub/internal/domain/shared"
	"github.com/demodigi-hub/results-hub/pkg/logger"
)

// testClientConfig disables waiting so tests run instantly.
func testClientConfig(baseURL string) ClientConfig {
	cfg := DefaultClientConfig(baseURL, "test-token")
	cfg.Logger = logger.Nop()
	cfg.RateLimiterConfig = RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		WaitTimeout:       time.Second,
	}
	return cfg
}

func TestListAccountUsers_FollowsLinkPagination(t *testing.T) {
	var pages []string

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v1/accounts/1/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/accounts/1/users?page=2>; rel="next", <%s/api/v1/accounts/1/users>; rel="first"`, server.URL, server.URL))
			fmt.Fprint(w, `[{"id":11,"name":"ansgar_anka"},{"id":12,"name":"mimmi_pigg"}]`)
		case "2":
			// Last page: no rel="next".
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/accounts/1/users>; rel="first"`, server.URL))
			fmt.Fprint(w, `[{"id":13,"name":"Outcomes Service API"}]`)
		default:
			t.Fatalf("unexpected page %q", page)
		}
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	users, err := client.ListAccountUsers(context.Background())
	require.NoError(t, err)

	require.Len(t, users, 3)
	assert.Equal(t, []string{"", "2"}, pages)

	mapping, err := client.UserIDMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, mapping["ansgar_anka"])
	assert.Equal(t, 13, mapping["Outcomes Service API"])
}

func TestSendMessage_ArrayResponseIsSuccess(t *testing.T) {
	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/conversations", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		fmt.Fprint(w, `[{"id":555}]`)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	err := client.SendMessage(context.Background(), 11, "Dina resultat", "Hej!")
	require.NoError(t, err)

	assert.Equal(t, []string{"Dina resultat"}, form["subject"])
	assert.Equal(t, []string{"11"}, form["recipients[]"])
	assert.Equal(t, []string{"true"}, form["force_new"])
	assert.Equal(t, []string{"Hej!"}, form["body"])
}

func TestSendMessage_ObjectResponseIsErrorEnvelope(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"errors":[{"message":"invalid recipients"}]}`)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	err := client.SendMessage(context.Background(), 11, "Dina resultat", "Hej!")

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCanvasInvalidResponse)
	assert.Contains(t, err.Error(), "invalid recipients")
	// Sends are never retried.
	assert.Equal(t, 1, calls)
}

func TestSendFileMessage_UploadFlow(t *testing.T) {
	var steps []string

	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v1/users/7/folders", func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, "folders")
		fmt.Fprint(w, `[{"id":1,"full_name":"my files"},{"id":42,"full_name":"my files/conversation attachments"}]`)
	})
	mux.HandleFunc("/api/v1/folders/42/files", func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, "ticket")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "results.json", r.PostForm.Get("name"))
		assert.Equal(t, "7", r.PostForm.Get("as_user_id"))

		json.NewEncoder(w).Encode(map[string]any{
			"upload_url":    server.URL + "/upload-target",
			"upload_params": map[string]string{"key": "abc123"},
		})
	})
	mux.HandleFunc("/upload-target", func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, "upload")
		// Pre-signed URL: the bearer token must not leak here.
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "abc123", r.FormValue("key"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "results.json", header.Filename)

		fmt.Fprint(w, `{"id":900,"upload_status":"success","display_name":"results.json"}`)
	})
	mux.HandleFunc("/api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, "conversation")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "900", r.PostForm.Get("attachment_ids[]"))
		assert.Equal(t, "sync", r.PostForm.Get("mode"))
		fmt.Fprint(w, `[{"id":556}]`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	err := client.SendFileMessage(context.Background(), 7, 11, "Dina resultat", "Se bilagan.", "results.json", []byte(`{"ID":"x"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"folders", "ticket", "upload", "conversation"}, steps)
}

func TestUploadFile_RejectsNonSuccessStatus(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/api/v1/folders/42/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"upload_url":    server.URL + "/upload-target",
			"upload_params": map[string]string{},
		})
	})
	mux.HandleFunc("/upload-target", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":900,"upload_status":"pending"}`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	_, err := client.UploadFile(context.Background(), server.URL+"/api/v1/folders/42/files", "r.json", []byte("{}"), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCanvasInvalidResponse)
	assert.Contains(t, err.Error(), "pending")
}

func TestGet_RetriesTransientServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"id":11,"name":"ansgar_anka"}]`)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	users, err := client.ListAccountUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 3, calls)
}

func TestCheckStatus_ThrottledResponseDrainsBucket(t *testing.T) {
	client := NewClient(testClientConfig("https://canvas.test"))

	// Canvas spells throttling as 403 with this body, not 429.
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{"Retry-After": []string{"30"}},
	}
	err := client.checkStatus(resp, []byte("403 Forbidden (Rate Limit Exceeded)"))

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCanvasRateLimited)
	// The bucket was drained: no token is immediately available.
	assert.False(t, client.rateLimiter.TryAllow())
	assert.Zero(t, client.Status().RateLimiter.Tokens)

	// A plain 403 without the marker body is a permanent error.
	err = client.checkStatus(&http.Response{StatusCode: http.StatusForbidden}, []byte("unauthorized"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCanvasInvalidResponse)
}

func TestNextLinkParsing(t *testing.T) {
	header := `<https://canvas.test/api/v1/accounts/1/users?page=2&per_page=100>; rel="current", ` +
		`<https://canvas.test/api/v1/accounts/1/users?page=3&per_page=100>; rel="next", ` +
		`<https://canvas.test/api/v1/accounts/1/users?page=1&per_page=100>; rel="first"`

	assert.Equal(t, "https://canvas.test/api/v1/accounts/1/users?page=3&per_page=100", nextLink(header))
	assert.Equal(t, "", nextLink(`<https://canvas.test/x>; rel="first"`))
	assert.Equal(t, "", nextLink(""))
}

func TestSendMessage_TimeoutGetsItsOwnError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		time.Sleep(150 * time.Millisecond)
		fmt.Fprint(w, `[]`)
	}))

	cfg := testClientConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	client := NewClient(cfg)

	err := client.SendMessage(context.Background(), 11, "subject", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCanvasTimeout)

	// Sends are never retried, timeout or not.
	server.Close()
	assert.Equal(t, 1, calls)
}
