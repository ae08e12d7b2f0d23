package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/auth"
	"github.com/sakif/blog-feed/internal/service"
)

// multipartMemory is how much of a multipart body is kept in memory; the
// rest spills to temp files.
const multipartMemory = 1 << 20

// FeedHandler exposes the post lifecycle over REST.
//
// THIN HANDLERS:
// Every method does three things: parse the request, call FeedService with
// the identity Annotate put in the context, write the response. Auth rules
// live in the service's Guard, so there is no RequireAuth on these routes.
type FeedHandler struct {
	feed   *service.FeedService
	logger *slog.Logger
}

func NewFeedHandler(feed *service.FeedService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: logger}
}

// HandleListPosts returns one page of the feed.
//
// HTTP: GET /feed/posts?page=2
func (h *FeedHandler) HandleListPosts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, apperror.ValidationFailed("page", "page must be a positive number"))
			return
		}
		page = n
	}

	result, err := h.feed.ListPosts(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Fetched posts successfully.",
		"posts":      result.Posts,
		"totalItems": result.TotalItems,
	})
}

// HandleGetPost returns a single post.
//
// HTTP: GET /feed/post/{postId}
func (h *FeedHandler) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.feed.GetPost(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Post fetched.", "post": post})
}

// HandleCreatePost creates a post from a multipart form (title, content,
// image file). The image must be uploaded with the request; a text path is
// ignored here. GraphQL clients attach a /post-image path through
// createPost instead.
//
// HTTP: POST /feed/post
func (h *FeedHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := h.readPostInput(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()
	in.ImagePath = ""

	post, err := h.feed.CreatePost(r.Context(), auth.IdentityFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Post created successfully!",
		"post":    post,
		"creator": post.Creator,
	})
}

// HandleUpdatePost replaces a post. The image field may be a new file or the
// existing path as text.
//
// HTTP: PUT /feed/post/{postId}
func (h *FeedHandler) HandleUpdatePost(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := h.readPostInput(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	post, err := h.feed.UpdatePost(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "postId"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Post updated!", "post": post})
}

// HandleDeletePost deletes a post.
//
// HTTP: DELETE /feed/post/{postId}
func (h *FeedHandler) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	err := h.feed.DeletePost(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "postId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted post."})
}

// HandlePostImage stores an image for clients that create posts through
// GraphQL: upload here first, then pass the returned path as imageUrl.
// An oldPath form field retires the previous image.
//
// HTTP: PUT /post-image (RequireAuth)
func (h *FeedHandler) HandlePostImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, bodyError(err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	upload, closeFile, err := formUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeFile()

	path, err := h.feed.StoreImage(r.Context(), auth.IdentityFromContext(r.Context()), upload, r.FormValue("oldPath"))
	if err != nil {
		writeError(w, err)
		return
	}
	if path == "" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No file provided!"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "File stored.", "filePath": path})
}

// postJSON is the JSON alternative to the multipart form.
type postJSON struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// readPostInput parses either a multipart form or a JSON body (update only
// carries a path in JSON). cleanup
// closes the uploaded file and removes multipart temp files.
func (h *FeedHandler) readPostInput(w http.ResponseWriter, r *http.Request) (service.PostInput, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+multipartMemory)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body postJSON
		if err := decodeJSON(w, r, &body); err != nil {
			return service.PostInput{}, noop, err
		}
		return service.PostInput{Title: body.Title, Content: body.Content, ImagePath: body.ImageURL}, noop, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return service.PostInput{}, noop, bodyError(err)
	}

	upload, closeFile, err := formUpload(r)
	if err != nil {
		return service.PostInput{}, noop, err
	}

	in := service.PostInput{
		Title:   r.FormValue("title"),
		Content: r.FormValue("content"),
		Image:   upload,
	}
	if upload == nil {
		in.ImagePath = r.FormValue("image")
	}

	cleanup := func() {
		closeFile()
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}
	return in, cleanup, nil
}

// formUpload returns the "image" file of a parsed form, or nil if none was sent.
func formUpload(r *http.Request) (*service.Upload, func(), error) {
	noop := func() {}
	if r.MultipartForm == nil {
		return nil, noop, nil
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, apperror.ValidationFailed("image", "Could not read uploaded image.")
	}

	return uploadFromPart(file, header), func() { file.Close() }, nil
}

func uploadFromPart(file multipart.File, header *multipart.FileHeader) *service.Upload {
	return &service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        io.Reader(file),
	}
}

// bodyError turns a body parsing failure into a client error.
func bodyError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
		return apperror.ValidationFailed("image", "Image is too large (max 10 MB).")
	}
	return apperror.ValidationFailed("body", "Malformed form data")
}
