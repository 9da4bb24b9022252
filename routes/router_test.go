package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lch-dev/board2/config"
	"github.com/lch-dev/board2/models"
	"github.com/lch-dev/board2/session"
)

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "board2-test-*")
	if err != nil {
		panic(err)
	}
	os.Setenv("GIN_MODE", "test")
	os.Setenv("GIN_PATH", filepath.Join(tmp, "gin.log"))
	os.Setenv("UPLOAD_DIR", filepath.Join(tmp, "uploads"))
	os.Setenv("RATE_LIMIT_PER_MINUTE", "100000")
	os.MkdirAll(filepath.Join(tmp, "uploads"), 0o755)
	config.Load()

	code := m.Run()
	os.RemoveAll(tmp)
	os.Exit(code)
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Post{},
		&models.Comment{},
		&models.Attachment{},
		&models.SearchHistory{},
	))
	store := session.New(config.Get(), db)
	return SetupRouter(db, store), db
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

func register(t *testing.T, r *gin.Engine, userID, email, nickname string) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"userId":   userID,
		"email":    email,
		"password": "password123",
		"nickname": nickname,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func login(t *testing.T, r *gin.Engine, userID string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"userId":   userID,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	var token string
	require.NoError(t, json.Unmarshal(env.Data, &token))
	require.NotEmpty(t, token)
	return token
}

func createPost(t *testing.T, r *gin.Engine, token, title, content string, files map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	blob, err := json.Marshal(gin.H{"title": title, "content": content})
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("request", string(blob)))
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/posts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodeEnvelope(t, w)
	var id string
	require.NoError(t, json.Unmarshal(env.Data, &id))
	return id
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{"short userId", gin.H{"userId": "ab", "email": "a@b.com", "password": "password123", "nickname": "Al"}},
		{"non alphanumeric userId", gin.H{"userId": "bad id!", "email": "a@b.com", "password": "password123", "nickname": "Al"}},
		{"invalid email", gin.H{"userId": "alice1", "email": "not-an-email", "password": "password123", "nickname": "Al"}},
		{"short password", gin.H{"userId": "alice1", "email": "a@b.com", "password": "short", "nickname": "Al"}},
		{"short nickname", gin.H{"userId": "alice1", "email": "a@b.com", "password": "password123", "nickname": "A"}},
		{"missing fields", gin.H{"userId": "alice1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r, db := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")

	w := doJSON(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"userId":   "alice1",
		"email":    "other@example.com",
		"password": "password123",
		"nickname": "Alice",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"userId":   "alice2",
		"email":    "alice@example.com",
		"password": "password123",
		"nickname": "Alice",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLoginAndMe(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")

	w := doJSON(t, r, http.MethodPost, "/auth/login", "", gin.H{"userId": "alice1", "password": "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decodeEnvelope(t, w).Message)

	w = doJSON(t, r, http.MethodPost, "/auth/login", "", gin.H{"userId": "nobody99", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := login(t, r, "alice1")
	w = doJSON(t, r, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	var userID string
	require.NoError(t, json.Unmarshal(env.Data, &userID))
	assert.Equal(t, "alice1", userID)

	w = doJSON(t, r, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", decodeEnvelope(t, w).Message)
}

func TestLogoutRevokesToken(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")

	w := doJSON(t, r, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logged out", decodeEnvelope(t, w).Message)

	w = doJSON(t, r, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostDetailIncrementsViewCount(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")
	id := createPost(t, r, token, "Hello", "First post", nil)

	var detail struct {
		ID             uint   `json:"id"`
		Title          string `json:"title"`
		ViewCount      int64  `json:"viewCount"`
		AuthorID       string `json:"authorId"`
		AuthorNickname string `json:"authorNickname"`
	}

	w := doJSON(t, r, http.MethodGet, "/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &detail))
	assert.Equal(t, int64(1), detail.ViewCount)
	assert.Equal(t, "Hello", detail.Title)
	assert.Equal(t, "alice1", detail.AuthorID)
	assert.Equal(t, "Alice", detail.AuthorNickname)

	w = doJSON(t, r, http.MethodGet, "/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &detail))
	assert.Equal(t, int64(2), detail.ViewCount)
}

func TestPostDetailNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/posts/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", decodeEnvelope(t, w).Message)
}

func TestListPostsPagination(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")
	for i := 1; i <= 25; i++ {
		createPost(t, r, token, fmt.Sprintf("Post %02d", i), "body", nil)
	}

	var page struct {
		TotalPages    int64 `json:"totalPages"`
		TotalElements int64 `json:"totalElements"`
		Pageable      struct {
			PageNumber int `json:"pageNumber"`
			PageSize   int `json:"pageSize"`
		} `json:"pageable"`
		Content []struct {
			Title string `json:"title"`
		} `json:"content"`
	}

	w := doJSON(t, r, http.MethodGet, "/posts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
	assert.Equal(t, int64(3), page.TotalPages)
	assert.Equal(t, int64(25), page.TotalElements)
	assert.Equal(t, 0, page.Pageable.PageNumber)
	assert.Equal(t, 10, page.Pageable.PageSize)
	require.Len(t, page.Content, 10)
	assert.Equal(t, "Post 25", page.Content[0].Title)

	w = doJSON(t, r, http.MethodGet, "/posts?page=2&size=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
	assert.Len(t, page.Content, 5)
	assert.Equal(t, "Post 05", page.Content[0].Title)
}

func TestSearchAndHistory(t *testing.T) {
	r, db := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")
	createPost(t, r, token, "Go tips", "tuning the garbage collector", nil)
	createPost(t, r, token, "Rust tips", "borrow checker", nil)

	var page struct {
		TotalElements int64 `json:"totalElements"`
		Content       []struct {
			Title string `json:"title"`
		} `json:"content"`
	}

	w := doJSON(t, r, http.MethodGet, "/posts/search?keyword=tips", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
	assert.Equal(t, int64(2), page.TotalElements)

	// matches content as well as title
	w = doJSON(t, r, http.MethodGet, "/posts/search?keyword=garbage", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
	assert.Equal(t, int64(1), page.TotalElements)

	// single-char keyword searches but is not recorded
	w = doJSON(t, r, http.MethodGet, "/posts/search?keyword=G", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// anonymous search leaves no history
	w = doJSON(t, r, http.MethodGet, "/posts/search?keyword=anonymous", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// repeat search must not duplicate the history entry
	w = doJSON(t, r, http.MethodGet, "/posts/search?keyword=tips", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rows int64
	db.Model(&models.SearchHistory{}).Count(&rows)
	assert.Equal(t, int64(3), rows)

	w = doJSON(t, r, http.MethodGet, "/posts/search/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Keywords []string `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &history))
	assert.Equal(t, []string{"tips", "garbage"}, history.Keywords)

	w = doJSON(t, r, http.MethodGet, "/posts/search/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSearchHistoryKeepsTenDistinct(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")

	for i := 1; i <= 12; i++ {
		w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/posts/search?keyword=term%02d", i), token, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/posts/search/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Keywords []string `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &history))
	require.Len(t, history.Keywords, 10)
	assert.Equal(t, "term12", history.Keywords[0])
	assert.Equal(t, "term03", history.Keywords[9])
}

func TestUpdatePostOwnership(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	register(t, r, "bob22", "bob@example.com", "Bob")
	aliceToken := login(t, r, "alice1")
	bobToken := login(t, r, "bob22")
	id := createPost(t, r, aliceToken, "Original", "body", nil)

	update := func(token, postID string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		blob, _ := json.Marshal(gin.H{"title": "Edited", "content": "new body"})
		mw.WriteField("request", string(blob))
		mw.Close()
		req := httptest.NewRequest(http.MethodPut, "/posts/"+postID, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := update(bobToken, id)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden", decodeEnvelope(t, w).Message)

	w = update(aliceToken, "9999")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = update(aliceToken, id)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "Post updated", env.Message)

	w = doJSON(t, r, http.MethodGet, "/posts/"+id, "", nil)
	var detail struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &detail))
	assert.Equal(t, "Edited", detail.Title)
}

func TestDeletePostCascades(t *testing.T) {
	r, db := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	register(t, r, "bob22", "bob@example.com", "Bob")
	aliceToken := login(t, r, "alice1")
	bobToken := login(t, r, "bob22")

	id := createPost(t, r, aliceToken, "Doomed", "body", map[string][]byte{"note.txt": []byte("hello")})
	w := doJSON(t, r, http.MethodPost, "/posts/"+id+"/comments", bobToken, gin.H{"content": "nice post"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/posts/"+id, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/posts/"+id, aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Post deleted", decodeEnvelope(t, w).Message)

	var posts, comments, attachments int64
	db.Model(&models.Post{}).Count(&posts)
	db.Model(&models.Comment{}).Count(&comments)
	db.Model(&models.Attachment{}).Count(&attachments)
	assert.Zero(t, posts)
	assert.Zero(t, comments)
	assert.Zero(t, attachments)

	w = doJSON(t, r, http.MethodGet, "/posts/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestComments(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	register(t, r, "bob22", "bob@example.com", "Bob")
	aliceToken := login(t, r, "alice1")
	bobToken := login(t, r, "bob22")
	id := createPost(t, r, aliceToken, "Discuss", "body", nil)

	w := doJSON(t, r, http.MethodPost, "/posts/9999/comments", bobToken, gin.H{"content": "lost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/posts/"+id+"/comments", bobToken, gin.H{"content": "first!"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Comment added", decodeEnvelope(t, w).Message)

	w = doJSON(t, r, http.MethodPost, "/posts/"+id+"/comments", "", gin.H{"content": "anon"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var detail struct {
		Comments []struct {
			ID             uint   `json:"id"`
			Content        string `json:"content"`
			AuthorNickname string `json:"authorNickname"`
		} `json:"comments"`
	}
	w = doJSON(t, r, http.MethodGet, "/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &detail))
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "first!", detail.Comments[0].Content)
	assert.Equal(t, "Bob", detail.Comments[0].AuthorNickname)

	commentID := fmt.Sprintf("%d", detail.Comments[0].ID)
	w = doJSON(t, r, http.MethodDelete, "/posts/comments/"+commentID, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/posts/comments/"+commentID, bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Comment deleted", decodeEnvelope(t, w).Message)

	w = doJSON(t, r, http.MethodDelete, "/posts/comments/"+commentID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreatePostWithAttachments(t *testing.T) {
	r, db := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")

	id := createPost(t, r, token, "With files", "body", map[string][]byte{
		"a.txt": []byte("aaa"),
		"b.txt": []byte("bbb"),
	})

	var rows []models.Attachment
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEmpty(t, row.S3Key)
		data, err := os.ReadFile(filepath.Join(config.Get().UploadDir, row.S3Key))
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}

	var detail struct {
		Attachments []struct {
			FileName string `json:"fileName"`
			S3Key    string `json:"s3Key"`
		} `json:"attachments"`
	}
	w := doJSON(t, r, http.MethodGet, "/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &detail))
	assert.Len(t, detail.Attachments, 2)
}

func TestCreatePostValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	register(t, r, "alice1", "alice@example.com", "Alice")
	token := login(t, r, "alice1")

	post := func(blob string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if blob != "" {
			mw.WriteField("request", blob)
		}
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/posts", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, post("").Code)
	assert.Equal(t, http.StatusBadRequest, post("not json").Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"title":"","content":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"title":"x","content":""}`).Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, r, http.MethodPost, "/posts", "", gin.H{}).Code)
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", decodeEnvelope(t, w).Message)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
