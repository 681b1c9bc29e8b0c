package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"postboard/internal/auth"
	"postboard/internal/images"
	"postboard/internal/model"
	"postboard/internal/posts"
	"postboard/internal/store/storetest"
)

const testSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	images *images.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := storetest.NewSQLite(t)
	imgs := images.NewStore(filepath.Join(t.TempDir(), "images"))
	tokens := auth.NewTokens(testSecret, auth.DefaultTokenTTL, "")

	s := NewAPIServer(
		auth.NewService(st, tokens, bcrypt.MinCost),
		posts.NewService(st),
		imgs,
		"localhost:3000",
		0,
	)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, images: imgs}
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body io.Reader) *http.Response {
	t.Helper()

	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return e.do(t, http.MethodPost, path, "", "application/json", bytes.NewBuffer(b))
}

func (e *testEnv) login(t *testing.T, email string) auth.Session {
	t.Helper()

	resp := e.postJSON(t, "/api/user/signup", CredentialsRequest{Email: email, Password: "test-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.postJSON(t, "/api/user/login", CredentialsRequest{Email: email, Password: "test-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return decode[auth.Session](t, resp)
}

func (e *testEnv) createPost(t *testing.T, token, title string) model.Post {
	t.Helper()

	body, ct := postForm(t, map[string]string{"title": title, "content": "content of " + title}, pngFile(t))
	resp := e.do(t, http.MethodPost, "/api/posts", token, ct, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decode[PostResponse](t, resp).Post
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func pngFile(t *testing.T) *formFile {
	t.Helper()

	b, err := os.ReadFile("./testdata/test.png")
	require.NoError(t, err)

	return &formFile{name: "Test Image.png", contentType: "image/png", data: b}
}

func postForm(t *testing.T, fields map[string]string, file *formFile) (*bytes.Buffer, string) {
	t.Helper()

	var bf bytes.Buffer
	w := multipart.NewWriter(&bf)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, file.name))
		h.Set("Content-Type", file.contentType)

		fw, err := w.CreatePart(h)
		require.NoError(t, err)

		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return &bf, w.FormDataContentType()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))

	return v
}

func TestAPIServer_SignupAndLogin(t *testing.T) {
	e := newTestEnv(t)

	resp := e.postJSON(t, "/api/user/signup", CredentialsRequest{Email: "ada@example.com", Password: "test-1"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var signup map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&signup))
	assert.Equal(t, "User created!", signup["message"])
	data := signup["data"].(map[string]any)
	assert.Equal(t, "ada@example.com", data["email"])
	assert.NotContains(t, data, "passwordHash", "hash must not leak")

	resp = e.postJSON(t, "/api/user/login", CredentialsRequest{Email: "ada@example.com", Password: "test-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	session := decode[auth.Session](t, resp)
	assert.NotEmpty(t, session.Token)
	assert.EqualValues(t, 3600, session.ExpiresIn)
	assert.Equal(t, data["id"], session.UserID)
}

func TestAPIServer_SignupDuplicate(t *testing.T) {
	e := newTestEnv(t)
	e.login(t, "ada@example.com")

	resp := e.postJSON(t, "/api/user/signup", CredentialsRequest{Email: "ada@example.com", Password: "other"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Invalid authentication credentials!", decode[MessageResponse](t, resp).Message)

	// The original password is untouched.
	resp = e.postJSON(t, "/api/user/login", CredentialsRequest{Email: "ada@example.com", Password: "test-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIServer_SignupBadRequest(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/user/signup", "", "application/json", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.postJSON(t, "/api/user/signup", CredentialsRequest{Email: "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIServer_LoginFailuresLookAlike(t *testing.T) {
	e := newTestEnv(t)
	e.login(t, "ada@example.com")

	wrongPassword := e.postJSON(t, "/api/user/login", CredentialsRequest{Email: "ada@example.com", Password: "invalid-password"})
	unknownEmail := e.postJSON(t, "/api/user/login", CredentialsRequest{Email: "bob@example.com", Password: "test-1"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	assert.Equal(t, wrongPassword.StatusCode, unknownEmail.StatusCode)

	b1, err := io.ReadAll(wrongPassword.Body)
	require.NoError(t, err)
	b2, err := io.ReadAll(unknownEmail.Body)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestAPIServer_CreateAndGetPost(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t, "ada@example.com")

	created := e.createPost(t, session.Token, "Hello")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Hello", created.Title)
	assert.Equal(t, "content of Hello", created.Content)
	assert.Equal(t, session.UserID, created.Creator)
	assert.True(t, strings.HasPrefix(created.ImagePath, e.server.URL+"/images/test-image-"), created.ImagePath)
	assert.True(t, strings.HasSuffix(created.ImagePath, ".png"), created.ImagePath)

	resp := e.do(t, http.MethodGet, "/api/posts/"+created.ID, "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decode[PostResponse](t, resp).Post)

	// The image URL resolves to the uploaded bytes.
	resp, err := http.Get(created.ImagePath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	b1, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngFile(t).data, b1)
}

func TestAPIServer_CreatePostSameImageName(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t, "ada@example.com")

	first := e.createPost(t, session.Token, "first")
	second := e.createPost(t, session.Token, "second")
	assert.NotEqual(t, first.ImagePath, second.ImagePath)

	for _, p := range []model.Post{first, second} {
		resp, err := http.Get(p.ImagePath)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestAPIServer_GetPostNotFound(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/posts/does-not-exist", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Post not found!", decode[MessageResponse](t, resp).Message)
}

func TestAPIServer_CreatePostUnauthorized(t *testing.T) {
	e := newTestEnv(t)

	expired := auth.NewTokens(testSecret, time.Hour, "")
	expired.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	old, err := expired.Issue(model.User{ID: "u1", Email: "ada@example.com"})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing": "",
		"invalid": "invalid-token",
		"expired": old.Access,
	} {
		t.Run(name, func(t *testing.T) {
			body, ct := postForm(t, map[string]string{"title": "t", "content": "c"}, pngFile(t))

			resp := e.do(t, http.MethodPost, "/api/posts", token, ct, body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Not authenticated!", decode[MessageResponse](t, resp).Message)
		})
	}

	resp := e.do(t, http.MethodGet, "/api/posts", "", "", nil)
	assert.Zero(t, decode[ListPostsResponse](t, resp).MaxPosts)
}

func TestAPIServer_CreatePostRejectsGIF(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t, "ada@example.com")

	gif := &formFile{name: "anim.gif", contentType: "image/gif", data: []byte("GIF89a")}
	body, ct := postForm(t, map[string]string{"title": "t", "content": "c"}, gif)

	resp := e.do(t, http.MethodPost, "/api/posts", session.Token, ct, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/posts", "", "", nil)
	assert.Zero(t, decode[ListPostsResponse](t, resp).MaxPosts)

	entries, _ := os.ReadDir(e.images.Root())
	assert.Empty(t, entries)
}

func TestAPIServer_CreatePostValidation(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t, "ada@example.com")

	body, ct := postForm(t, map[string]string{"title": "t", "content": "c"}, nil)
	resp := e.do(t, http.MethodPost, "/api/posts", session.Token, ct, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Image is required!", decode[MessageResponse](t, resp).Message)

	body, ct = postForm(t, map[string]string{"content": "c"}, pngFile(t))
	resp = e.do(t, http.MethodPost, "/api/posts", session.Token, ct, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	entries, _ := os.ReadDir(e.images.Root())
	assert.Empty(t, entries)
}

func TestAPIServer_ListPosts(t *testing.T) {
	e := newTestEnv(t)
	session := e.login(t, "ada@example.com")

	for i := 1; i <= 5; i++ {
		e.createPost(t, session.Token, fmt.Sprintf("post %d", i))
	}

	cases := []struct {
		query  string
		titles []string
	}{
		{"/api/posts?pageSize=2&page=1", []string{"post 1", "post 2"}},
		{"/api/posts/?pageSize=2&page=3", []string{"post 5"}},
		{"/api/posts", []string{"post 1", "post 2", "post 3", "post 4", "post 5"}},
		{"/api/posts?pageSize=abc&page=1", []string{"post 1", "post 2", "post 3", "post 4", "post 5"}},
		{"/api/posts?pageSize=2&page=4611686018427387905", []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			resp := e.do(t, http.MethodGet, tc.query, "", "", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			list := decode[ListPostsResponse](t, resp)
			assert.Equal(t, "Posts fetched successfully!", list.Message)
			assert.EqualValues(t, 5, list.MaxPosts)

			titles := []string{}
			for _, p := range list.Posts {
				titles = append(titles, p.Title)
			}
			assert.Equal(t, tc.titles, titles)
		})
	}
}

func TestAPIServer_ListPostsEmpty(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/posts", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["posts"]))
	assert.JSONEq(t, `0`, string(raw["maxPosts"]))
}

func TestAPIServer_UpdatePost(t *testing.T) {
	e := newTestEnv(t)
	owner := e.login(t, "ada@example.com")
	post := e.createPost(t, owner.Token, "Hello")

	t.Run("multipart without image keeps image", func(t *testing.T) {
		body, ct := postForm(t, map[string]string{"id": post.ID, "title": "Edited", "content": "new content"}, nil)

		resp := e.do(t, http.MethodPut, "/api/posts/"+post.ID, owner.Token, ct, body)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		updated := decode[UpdatePostResponse](t, resp).UpdatedPost
		assert.Equal(t, model.Post{
			ID:        post.ID,
			Title:     "Edited",
			Content:   "new content",
			ImagePath: post.ImagePath,
			Creator:   owner.UserID,
		}, updated)
	})

	t.Run("multipart with new image", func(t *testing.T) {
		img := pngFile(t)
		img.name = "second.png"
		body, ct := postForm(t, map[string]string{"title": "Edited", "content": "new content"}, img)

		resp := e.do(t, http.MethodPut, "/api/posts/"+post.ID, owner.Token, ct, body)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		updated := decode[UpdatePostResponse](t, resp).UpdatedPost
		assert.True(t, strings.HasPrefix(updated.ImagePath, e.server.URL+"/images/second-"), updated.ImagePath)
	})

	t.Run("json keeps image by url", func(t *testing.T) {
		b, err := json.Marshal(UpdatePostRequest{ID: post.ID, Title: "JSON", Content: "body", ImagePath: post.ImagePath})
		require.NoError(t, err)

		resp := e.do(t, http.MethodPut, "/api/posts/"+post.ID, owner.Token, "application/json", bytes.NewBuffer(b))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = e.do(t, http.MethodGet, "/api/posts/"+post.ID, "", "", nil)
		got := decode[PostResponse](t, resp).Post
		assert.Equal(t, "JSON", got.Title)
		assert.Equal(t, post.ImagePath, got.ImagePath)
	})
}

func TestAPIServer_UpdatePostNotOwner(t *testing.T) {
	e := newTestEnv(t)
	owner := e.login(t, "ada@example.com")
	intruder := e.login(t, "eve@example.com")
	post := e.createPost(t, owner.Token, "Hello")

	body, ct := postForm(t, map[string]string{"title": "Hijacked", "content": "x"}, nil)
	resp := e.do(t, http.MethodPut, "/api/posts/"+post.ID, intruder.Token, ct, body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized!", decode[MessageResponse](t, resp).Message)

	resp = e.do(t, http.MethodGet, "/api/posts/"+post.ID, "", "", nil)
	assert.Equal(t, post, decode[PostResponse](t, resp).Post)

	body, ct = postForm(t, map[string]string{"title": "x", "content": "x"}, nil)
	resp = e.do(t, http.MethodPut, "/api/posts/missing", owner.Token, ct, body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIServer_DeletePost(t *testing.T) {
	e := newTestEnv(t)
	owner := e.login(t, "ada@example.com")
	intruder := e.login(t, "eve@example.com")
	post := e.createPost(t, owner.Token, "Hello")

	resp := e.do(t, http.MethodDelete, "/api/posts/"+post.ID, intruder.Token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/posts/"+post.ID, "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/posts/"+post.ID, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/posts/"+post.ID, owner.Token, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Deletion successful!", decode[MessageResponse](t, resp).Message)

	resp = e.do(t, http.MethodGet, "/api/posts/"+post.ID, "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/posts/"+post.ID, owner.Token, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIServer_Preflight(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodOptions, "/api/posts/abc", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestAPIServer_CORSOnUnmatchedRoutes(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPatch, "/api/posts", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := e.do(t, tt.method, tt.path, "", "", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestImageURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://blog.example.com/api/posts", nil)
	assert.Equal(t, "http://blog.example.com/images/a-1.png", imageURL(r, "a-1.png"))

	r.Header.Set("X-Forwarded-Proto", "https, http")
	assert.Equal(t, "https://blog.example.com/images/a-1.png", imageURL(r, "a-1.png"))
}
