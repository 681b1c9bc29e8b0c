// Package client is a Go client for the postboard HTTP API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a postboard server. Login stores the token used by the
// mutating calls.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
	UserID     string
}

type Post struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ImagePath string `json:"imagePath"`
	Creator   string `json:"creator"`
}

// Image is an upload attached to a create or update call.
type Image struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postboard: %d %s", e.Status, e.Message)
}

var ErrNotAuthenticated = errors.New("client: not authenticated")

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

func (c *Client) Logout() {
	c.Token, c.UserID, c.TokenExp = "", "", time.Time{}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and returns its id.
func (c *Client) Signup(email, password string) (string, error) {
	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}

	if err := c.doJSON(http.MethodPost, "/api/user/signup", credentials{email, password}, &out); err != nil {
		return "", err
	}

	return out.Data.ID, nil
}

func (c *Client) Login(email, password string) error {
	var out struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expiresIn"`
		UserID    string `json:"userId"`
	}

	if err := c.doJSON(http.MethodPost, "/api/user/login", credentials{email, password}, &out); err != nil {
		return err
	}

	c.Token = out.Token
	c.UserID = out.UserID
	c.TokenExp = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)

	return nil
}

// GetPosts returns one page of posts and the total number of posts.
// Non-positive values fetch everything.
func (c *Client) GetPosts(pageSize, page int) ([]Post, int64, error) {
	path := "/api/posts"
	if pageSize > 0 && page > 0 {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))
		path += "?" + q.Encode()
	}

	var out struct {
		Posts    []Post `json:"posts"`
		MaxPosts int64  `json:"maxPosts"`
	}
	if err := c.doJSON(http.MethodGet, path, nil, &out); err != nil {
		return nil, 0, err
	}

	return out.Posts, out.MaxPosts, nil
}

func (c *Client) GetPost(id string) (*Post, error) {
	var out struct {
		Post Post `json:"post"`
	}
	if err := c.doJSON(http.MethodGet, "/api/posts/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}

	return &out.Post, nil
}

func (c *Client) AddPost(title, content string, image Image) (*Post, error) {
	body, contentType, err := postForm(map[string]string{"title": title, "content": content}, &image)
	if err != nil {
		return nil, err
	}

	var out struct {
		Post Post `json:"post"`
	}
	if err := c.do(http.MethodPost, "/api/posts", contentType, body, &out); err != nil {
		return nil, err
	}

	return &out.Post, nil
}

// UpdatePost edits a post and keeps its image at imagePath.
func (c *Client) UpdatePost(id, title, content, imagePath string) (*Post, error) {
	req := map[string]string{"id": id, "title": title, "content": content, "imagePath": imagePath}

	var out struct {
		UpdatedPost Post `json:"updatedPost"`
	}
	if err := c.doJSON(http.MethodPut, "/api/posts/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}

	return &out.UpdatedPost, nil
}

// UpdatePostImage edits a post and replaces its image.
func (c *Client) UpdatePostImage(id, title, content string, image Image) (*Post, error) {
	body, contentType, err := postForm(map[string]string{"id": id, "title": title, "content": content}, &image)
	if err != nil {
		return nil, err
	}

	var out struct {
		UpdatedPost Post `json:"updatedPost"`
	}
	if err := c.do(http.MethodPut, "/api/posts/"+url.PathEscape(id), contentType, body, &out); err != nil {
		return nil, err
	}

	return &out.UpdatedPost, nil
}

func (c *Client) DeletePost(id string) error {
	return c.do(http.MethodDelete, "/api/posts/"+url.PathEscape(id), "", nil, nil)
}

func (c *Client) doJSON(method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	return c.do(method, path, contentType, body, out)
}

func (c *Client) do(method, path, contentType string, body io.Reader, out any) error {
	mutating := method != http.MethodGet && !strings.HasPrefix(path, "/api/user/")
	if mutating && c.Token == "" {
		return ErrNotAuthenticated
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		respBody, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(respBody, &msg) != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(respBody))
		}

		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func postForm(fields map[string]string, image *Image) (*bytes.Buffer, string, error) {
	var bf bytes.Buffer
	w := multipart.NewWriter(&bf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if image != nil && image.Body != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Name))
		h.Set("Content-Type", image.ContentType)

		fw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(fw, image.Body); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &bf, w.FormDataContentType(), nil
}
