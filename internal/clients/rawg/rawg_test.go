package rawg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gametrack/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "secret", q.Get("key"))
		assert.Equal(t, "zelda", q.Get("search"))
		assert.Equal(t, "7,105", q.Get("platforms"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "20", q.Get("page_size"))
		assert.Equal(t, "2005-01-01,2030-12-31", q.Get("dates"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":1,"results":[{"id":22511,"name":"The Legend of Zelda: Breath of the Wild","background_image":null,"released":"2017-03-03","metacritic":97,"platforms":[{"platform":{"id":7,"name":"Nintendo Switch","slug":"nintendo-switch"}}],"genres":[{"id":4,"name":"Action","slug":"action"}]}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", 5*time.Second)

	res, err := c.Search(context.Background(), models.SearchParams{Query: "zelda", Platforms: []int64{7, 105}})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Results, 1)
	game := res.Results[0]
	assert.Equal(t, int64(22511), game.ID)
	assert.Nil(t, game.BackgroundImage)
	assert.Equal(t, 97, *game.Metacritic)
	assert.True(t, game.HasPlatform(7))
}

func TestClient_Search_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong", 5*time.Second)

	res, err := c.Search(context.Background(), models.SearchParams{Query: "x"})

	assert.Nil(t, res)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestClient_GetDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/games/3498", r.URL.Path)
		w.Write([]byte(`{"id":3498,"name":"Grand Theft Auto V","description":"<p>Rockstar Games went bigger.</p>\n<p>Three <b>protagonists</b>.</p>","playtime":74,"rating":4.47,"website":"http://www.rockstargames.com/V/"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", 5*time.Second)

	details, err := c.GetDetails(context.Background(), 3498)

	require.NoError(t, err)
	assert.Equal(t, "Grand Theft Auto V", details.Name)
	assert.Equal(t, "Rockstar Games went bigger.\n\nThree protagonists.", details.Description)
	assert.Equal(t, 74, details.Playtime)
}

func TestClient_GamesByPlatform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "187", r.URL.Query().Get("platforms"))
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Empty(t, r.URL.Query().Get("search"))
		w.Write([]byte(`{"count":0,"results":null}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", 5*time.Second)

	res, err := c.GamesByPlatform(context.Background(), 187, 3)

	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
}

func TestClient_RespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, models.SearchParams{Query: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
