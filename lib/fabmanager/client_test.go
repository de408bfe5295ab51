package fabmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"fablab-opendata/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Token: "secret"})
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://fab.example.org"})
	require.Error(t, err)
	_, err = New(Config{BaseURL: "https://fab.example.org", Token: "secret"})
	require.NoError(t, err)
}

func TestFetchAllPaginates(t *testing.T) {
	defer telemetry.SetupForTesting(t, "fabmanager")()

	const total = 250
	const perPage = 100

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)

		start := (page - 1) * perPage
		end := min(start+perPage, total)
		users := []map[string]any{}
		for i := start; i < end; i++ {
			users = append(users, map[string]any{
				"id":    i + 1,
				"email": fmt.Sprintf("user%d@example.org", i+1),
			})
		}

		w.Header().Set("Total", strconv.Itoa(total))
		w.Header().Set("Per-Page", strconv.Itoa(perPage))
		if end < total {
			w.Header().Set(
				"Link",
				fmt.Sprintf(`<%s?page=%d&per_page=%d>; rel="next"`, r.URL.Path, page+1, perPage),
			)
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"users": users}))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Token: "secret"})
	require.NoError(t, err)

	records, err := client.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, records, total)
	require.Equal(t, "Token token=secret", gotAuth)

	id, ok := records[total-1].Int("id")
	require.True(t, ok)
	require.EqualValues(t, total, id)
}

func TestFetchAllBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "name": "Laser Cutter"},
		}))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Token: "secret"})
	require.NoError(t, err)

	records, err := client.Machines(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	name, ok := records[0].String("name")
	require.True(t, ok)
	require.Equal(t, "Laser Cutter", name)
}

func TestFetchAllErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Token: "wrong"})
	require.NoError(t, err)

	_, err = client.Users(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "http 401")
}

func TestTestConnection(t *testing.T) {
	for _, tt := range []struct {
		status int
		wantOK bool
	}{
		{http.StatusOK, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			if tt.status == http.StatusOK {
				_, _ = w.Write([]byte(`{"users": []}`))
			}
		}))

		client, err := New(Config{BaseURL: server.URL, Token: "secret"})
		require.NoError(t, err)

		err = client.TestConnection(context.Background())
		if tt.wantOK {
			require.NoError(t, err, "status %d", tt.status)
		} else {
			require.Error(t, err, "status %d", tt.status)
		}
		server.Close()
	}
}

func TestLinkRels(t *testing.T) {
	rels := linkRels(`<https://fab.example.org/open_api/v1/users?page=2>; rel="next", <https://fab.example.org/open_api/v1/users?page=5>; rel="last"`)
	require.Equal(t, "https://fab.example.org/open_api/v1/users?page=2", rels["next"])
	require.Equal(t, "https://fab.example.org/open_api/v1/users?page=5", rels["last"])

	require.Empty(t, linkRels(""))
}
