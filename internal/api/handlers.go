package api

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"

	"postboard/internal/auth"
	"postboard/internal/images"
	"postboard/internal/model"
	"postboard/internal/posts"
	"postboard/internal/store"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupResponse struct {
	Message string     `json:"message"`
	Data    model.User `json:"data"`
}

func (s *APIServer) HandleSignup(w http.ResponseWriter, r *http.Request) error {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	user, err := s.auth.Signup(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Email and password are required!"}
	case err != nil:
		// Duplicate emails land here too; the cause is not revealed.
		return &StatusError{Err: err, Status: http.StatusInternalServerError, Message: "Invalid authentication credentials!"}
	}

	slog.Info("User created", "user_id", user.ID)

	return writeJSON(w, http.StatusCreated, SignupResponse{Message: "User created!", Data: user})
}

func (s *APIServer) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return &StatusError{Err: err, Status: http.StatusUnauthorized, Message: "Invalid authentication credentials!"}
	case err != nil:
		return &StatusError{Err: err, Status: http.StatusInternalServerError, Message: "Login failed!"}
	}

	return writeJSON(w, http.StatusOK, session)
}

type ListPostsResponse struct {
	Message  string       `json:"message"`
	Posts    []model.Post `json:"posts"`
	MaxPosts int64        `json:"maxPosts"`
}

func (s *APIServer) HandleListPosts(w http.ResponseWriter, r *http.Request) error {
	// Unparseable values disable pagination, as if they were absent.
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := s.posts.List(r.Context(), pageSize, page)
	if err != nil {
		return &StatusError{Err: err, Status: http.StatusInternalServerError, Message: "Fetching posts failed!"}
	}

	return writeJSON(w, http.StatusOK, ListPostsResponse{
		Message:  "Posts fetched successfully!",
		Posts:    result.Posts,
		MaxPosts: result.Total,
	})
}

type PostResponse struct {
	Message string     `json:"message"`
	Post    model.Post `json:"post"`
}

func (s *APIServer) HandleGetPost(w http.ResponseWriter, r *http.Request) error {
	post, err := s.posts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return postError(err, "Fetching post failed!")
	}

	return writeJSON(w, http.StatusOK, PostResponse{Message: "Post fetched successfully!", Post: post})
}

func (s *APIServer) HandleCreatePost(id auth.Identity, w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		return &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Invalid multipart form!"}
	}
	defer r.MultipartForm.RemoveAll()

	draft := posts.Draft{
		Title:   r.FormValue("title"),
		Content: r.FormValue("content"),
	}
	if err := draft.Validate(); err != nil {
		return postError(err, "")
	}

	name, err := s.ingestImage(r)
	if err != nil {
		return err
	}
	if name == "" {
		return &StatusError{Err: posts.ErrInvalidPost, Status: http.StatusBadRequest, Message: "Image is required!"}
	}

	draft.ImagePath = imageURL(r, name)

	post, err := s.posts.Create(r.Context(), id.UserID, draft)
	if err != nil {
		s.discardImage(name)
		return postError(err, "Creating a post failed!")
	}

	slog.Info("Post created", "post_id", post.ID, "user_id", id.UserID)

	return writeJSON(w, http.StatusCreated, PostResponse{Message: "Post added successfully!", Post: post})
}

type UpdatePostRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ImagePath string `json:"imagePath"`
}

type UpdatePostResponse struct {
	Message     string     `json:"message"`
	UpdatedPost model.Post `json:"updatedPost"`
}

// HandleUpdatePost accepts a multipart form, optionally with a new image,
// or a JSON body that keeps the image by URL.
func (s *APIServer) HandleUpdatePost(id auth.Identity, w http.ResponseWriter, r *http.Request) error {
	var (
		draft posts.Draft
		name  string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			return &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Invalid multipart form!"}
		}
		defer r.MultipartForm.RemoveAll()

		draft = posts.Draft{
			Title:     r.FormValue("title"),
			Content:   r.FormValue("content"),
			ImagePath: r.FormValue("imagePath"),
		}
		if err := draft.Validate(); err != nil {
			return postError(err, "")
		}

		var err error
		if name, err = s.ingestImage(r); err != nil {
			return err
		}
		if name != "" {
			draft.ImagePath = imageURL(r, name)
		}
	} else {
		var req UpdatePostRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return err
		}

		draft = posts.Draft{Title: req.Title, Content: req.Content, ImagePath: req.ImagePath}
	}

	post, err := s.posts.Update(r.Context(), mux.Vars(r)["id"], id.UserID, draft)
	if err != nil {
		if name != "" {
			s.discardImage(name)
		}

		return postError(err, "Couldn't update post!")
	}

	return writeJSON(w, http.StatusOK, UpdatePostResponse{Message: "Update successful!", UpdatedPost: post})
}

func (s *APIServer) HandleDeletePost(id auth.Identity, w http.ResponseWriter, r *http.Request) error {
	if err := s.posts.Delete(r.Context(), mux.Vars(r)["id"], id.UserID); err != nil {
		return postError(err, "Deleting post failed!")
	}

	return writeJSON(w, http.StatusOK, MessageResponse{Message: "Deletion successful!"})
}

// ingestImage stores the "image" form file, if any, and returns its name.
func (s *APIServer) ingestImage(r *http.Request) (string, error) {
	formFile, handler, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Invalid image upload!"}
	}
	defer formFile.Close()

	slog.Debug("Received an image",
		"filename", handler.Filename,
		"size", handler.Size,
		"content_type", handler.Header.Get("Content-Type"),
	)

	name, err := s.images.Ingest(handler.Filename, handler.Header.Get("Content-Type"), formFile)
	if errors.Is(err, images.ErrUnsupportedMediaType) {
		return "", &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Invalid mime type!"}
	}
	if err != nil {
		return "", &StatusError{Err: err, Status: http.StatusInternalServerError, Message: "Saving image failed!"}
	}

	slog.Debug("Saved a file", "filename", name)

	return name, nil
}

func (s *APIServer) discardImage(name string) {
	if err := s.images.Remove(name); err != nil {
		slog.Warn("Failed to remove orphaned image", "filename", name, "error", err)
	}
}

// postError maps post service errors to responses; fallback is the message
// for unexpected failures.
func postError(err error, fallback string) error {
	switch {
	case errors.Is(err, posts.ErrInvalidPost):
		return &StatusError{Err: err, Status: http.StatusBadRequest, Message: "Title and content are required!"}
	case errors.Is(err, posts.ErrNotOwner):
		return &StatusError{Err: err, Status: http.StatusUnauthorized, Message: "Not authorized!"}
	case errors.Is(err, store.ErrNotFound):
		return &StatusError{Err: err, Status: http.StatusNotFound, Message: "Post not found!"}
	default:
		return &StatusError{Err: err, Status: http.StatusInternalServerError, Message: fallback}
	}
}

// imageURL builds the public URL of a stored image from the request's
// scheme and host.
func imageURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme, _, _ = strings.Cut(fwd, ",")
		scheme = strings.TrimSpace(scheme)
	}

	return scheme + "://" + r.Host + "/images/" + url.PathEscape(name)
}
