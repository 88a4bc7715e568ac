package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
	"github.com/mr1hm/go-disaster-notify/internal/stream"
)

const testSecret = "test-secret"

type testEnv struct {
	db          *repository.SQLiteDB
	broadcaster *stream.Broadcaster
	router      *gin.Engine
	uiseong     models.Region
	seoul       models.Region
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	return setupTestRouterFor(t, models.ChannelPush)
}

func setupTestRouterFor(t *testing.T, channel models.Channel) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{db: db, broadcaster: stream.NewBroadcaster()}
	t.Cleanup(env.broadcaster.Close)

	ctx := context.Background()
	env.uiseong = models.Region{Province: "경상북도", CityCounty: "의성군"}
	_, err = db.InsertRegion(ctx, &env.uiseong)
	require.NoError(t, err)
	env.seoul = models.Region{Province: "서울특별시"}
	_, err = db.InsertRegion(ctx, &env.seoul)
	require.NoError(t, err)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	NewHandler(db, db, env.broadcaster, testSecret, channel).RegisterRoutes(router)
	env.router = router
	return env
}

func (e *testEnv) addDisaster(t *testing.T, typ string, start time.Time, regions ...models.Region) *models.Disaster {
	t.Helper()
	ctx := context.Background()
	d := &models.Disaster{
		Type:          typ,
		SeverityLevel: "안전안내",
		Message:       typ + " 발생",
		Active:        true,
		StartTime:     start,
		UpdatedAt:     start,
		RawRegionText: typ + start.String(),
	}
	_, err := e.db.InsertDisaster(ctx, d)
	require.NoError(t, err)
	for _, r := range regions {
		_, err := e.db.LinkRegion(ctx, d.ID, r.ID)
		require.NoError(t, err)
	}
	return d
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "0b9d3f4e-6c3c-4b61-9a53-1e0d7d51a0f2")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "0b9d3f4e-6c3c-4b61-9a53-1e0d7d51a0f2", w.Header().Get(requestIDHeader))
}

func TestGetDisasters(t *testing.T) {
	env := setupTestRouter(t)
	base := time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC)
	env.addDisaster(t, "폭염", base, env.uiseong)
	env.addDisaster(t, "폭염", base.Add(time.Minute), env.seoul)
	env.addDisaster(t, "호우", base.Add(2*time.Minute), env.seoul)

	// Only the first one started before the cutoff.
	n, err := env.db.DeactivateStartedBefore(context.Background(), base.Add(30*time.Second), base.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	type listResponse struct {
		Summary   map[string]int     `json:"summary"`
		Disasters []disasterResponse `json:"disasters"`
	}
	get := func(t *testing.T, path string) listResponse {
		t.Helper()
		w := env.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp listResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	t.Run("all active", func(t *testing.T) {
		resp := get(t, "/api/disasters")
		assert.Equal(t, map[string]int{"폭염": 1, "호우": 1}, resp.Summary)
		require.Len(t, resp.Disasters, 2)
		assert.Equal(t, "호우", resp.Disasters[0].Type, "newest first")
	})

	t.Run("limit keeps full summary", func(t *testing.T) {
		resp := get(t, "/api/disasters?limit=1")
		assert.Len(t, resp.Disasters, 1)
		assert.Equal(t, map[string]int{"폭염": 1, "호우": 1}, resp.Summary)
	})

	t.Run("region filter", func(t *testing.T) {
		seoul := get(t, "/api/disasters?province="+url.QueryEscape("서울특별시"))
		assert.Len(t, seoul.Disasters, 2)
		assert.Equal(t, map[string]int{"폭염": 1, "호우": 1}, seoul.Summary)
		assert.Empty(t, get(t, "/api/disasters?province="+url.QueryEscape("경상북도")+"&city_county="+url.QueryEscape("의성군")).Disasters)
	})

	t.Run("unknown region", func(t *testing.T) {
		assert.Empty(t, get(t, "/api/disasters?province="+url.QueryEscape("제주특별자치도")).Disasters)
	})
}

func TestGetDisaster(t *testing.T) {
	env := setupTestRouter(t)
	d := env.addDisaster(t, "폭염", time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC), env.uiseong)

	w := env.do(t, http.MethodGet, "/api/disasters/"+strconv.FormatInt(d.ID, 10), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp disasterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, d.ID, resp.ID)
	require.Len(t, resp.Regions, 1)
	assert.Equal(t, "의성군", resp.Regions[0].CityCounty)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/disasters/999", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/disasters/abc", nil, "").Code)
}

func TestGetRegions(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/regions?province="+url.QueryEscape("경상북도"), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var regions []regionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &regions))
	require.Len(t, regions, 1)
	assert.Equal(t, env.uiseong.ID, regions[0].ID)
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestRouter(t)

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte("wrong"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", otherKey, http.StatusUnauthorized},
		{"expired", signToken(t, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no user claim", signToken(t, jwt.MapClaims{"email": "a@example.com"}), http.StatusUnauthorized},
		{"sub claim", signToken(t, jwt.MapClaims{"sub": "7"}), http.StatusOK},
		{"userId claim", signToken(t, jwt.MapClaims{"userId": 7}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/me/notifications", nil, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUpdateContact(t *testing.T) {
	env := setupTestRouter(t)
	token := signToken(t, jwt.MapClaims{"sub": "7"})
	ctx := context.Background()

	w := env.do(t, http.MethodPut, "/api/me/contact", map[string]string{"device_token": ""}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodPut, "/api/me/contact", map[string]string{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodPut, "/api/me/contact", map[string]string{"email": "seven@example.com"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code, "push delivery needs a device token")

	w = env.do(t, http.MethodPut, "/api/me/contact", map[string]string{
		"device_token": "fcm-7",
		"email":        "seven@example.com",
		"phone":        "+821012345678",
	}, token)
	require.Equal(t, http.StatusOK, w.Code)

	// Refreshing the token keeps the other fields.
	w = env.do(t, http.MethodPut, "/api/me/contact", map[string]string{"device_token": "fcm-7b"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	u, err := env.db.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "fcm-7b", u.DeviceToken)
	assert.Equal(t, "seven@example.com", u.Email)
	assert.Equal(t, "+821012345678", u.Phone)

	// An explicit empty value clears a field that delivery does not need.
	w = env.do(t, http.MethodPut, "/api/me/contact", map[string]string{"phone": ""}, token)
	require.Equal(t, http.StatusOK, w.Code)
	u, err = env.db.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, u.Phone)
	assert.Equal(t, "fcm-7b", u.DeviceToken)
}

func TestUpdateContact_EmailChannel(t *testing.T) {
	env := setupTestRouterFor(t, models.ChannelEmail)
	token := signToken(t, jwt.MapClaims{"sub": "8"})

	w := env.do(t, http.MethodPut, "/api/me/contact", map[string]string{"phone": "+821000000000"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/me/contact", map[string]string{"email": "eight@example.com"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	u, err := env.db.GetUser(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, "eight@example.com", u.Email)
	assert.Empty(t, u.DeviceToken)
}

func TestRegionSubscriptions(t *testing.T) {
	env := setupTestRouter(t)
	alice := signToken(t, jwt.MapClaims{"sub": "1"})
	bob := signToken(t, jwt.MapClaims{"sub": "2"})

	w := env.do(t, http.MethodPost, "/api/me/subscriptions/regions",
		map[string]string{"province": "경상북도", "city_county": "의성군"}, alice)
	require.Equal(t, http.StatusCreated, w.Code)
	var sub regionSubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, env.uiseong.ID, sub.RegionID)

	// Subscribing twice returns the same row.
	w = env.do(t, http.MethodPost, "/api/me/subscriptions/regions", map[string]int64{"region_id": env.uiseong.ID}, alice)
	require.Equal(t, http.StatusCreated, w.Code)
	var again regionSubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, sub.ID, again.ID)

	w = env.do(t, http.MethodPost, "/api/me/subscriptions/regions", map[string]string{"province": "없는도"}, alice)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, "/api/me/subscriptions/regions", map[string]string{}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/me/subscriptions/regions", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	var list []regionSubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	path := "/api/me/subscriptions/regions/" + strconv.FormatInt(sub.ID, 10)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil, bob).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil, alice).Code)
}

func TestTypeSubscriptions(t *testing.T) {
	env := setupTestRouter(t)
	alice := signToken(t, jwt.MapClaims{"sub": "1"})
	bob := signToken(t, jwt.MapClaims{"sub": "2"})

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/api/me/subscriptions/types", map[string]string{"disaster_type": " "}, alice).Code)

	w := env.do(t, http.MethodPost, "/api/me/subscriptions/types", map[string]string{"disaster_type": "폭염"}, alice)
	require.Equal(t, http.StatusCreated, w.Code)
	var sub typeSubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "폭염", sub.DisasterType)

	w = env.do(t, http.MethodGet, "/api/me/subscriptions/types", nil, bob)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	path := "/api/me/subscriptions/types/" + strconv.FormatInt(sub.ID, 10)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil, bob).Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil, alice).Code)
}

func TestListNotifications(t *testing.T) {
	env := setupTestRouter(t)
	d := env.addDisaster(t, "폭염", time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC), env.uiseong)
	require.NoError(t, env.db.CreateNotification(context.Background(), &models.Notification{
		UserID:     3,
		DisasterID: d.ID,
		Channel:    models.ChannelPush,
		Title:      "[폭염] 안전안내",
		Body:       d.Message,
	}))

	w := env.do(t, http.MethodGet, "/api/me/notifications", nil, signToken(t, jwt.MapClaims{"sub": "3"}))
	require.Equal(t, http.StatusOK, w.Code)
	var list []notificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].IsSent)
	assert.Equal(t, "push", list[0].Channel)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(2))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestStreamDisasters(t *testing.T) {
	env := setupTestRouter(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/disasters/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	env.broadcaster.Broadcast(&models.Disaster{ID: 11, Type: "지진", SeverityLevel: "긴급재난"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got disasterResponse
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, "지진", got.Type)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return env.broadcaster.SubscriberCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
