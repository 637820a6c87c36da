package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lapak/internal/handlers"
	"lapak/internal/middleware"
	"lapak/internal/models"
	"lapak/internal/repositories"
	"lapak/internal/services"
	"lapak/pkg/assets"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// setupApp builds the full Fiber app on an in-memory SQLite database and a
// temp upload directory, wired exactly like main.
func setupApp(t *testing.T) (*fiber.App, string) {
	t.Helper()

	viper.SetDefault("JWT_SECRET", "test_jwt_secret")
	viper.AutomaticEnv()

	// A per-test shared-cache DSN keeps tests isolated from each other while
	// letting all connections in one test see the same schema.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Category{}); err != nil {
		t.Fatalf("failed to auto-migrate database: %v", err)
	}

	uploadDir := t.TempDir()
	assetStore, err := assets.NewStore(uploadDir, "/uploads")
	if err != nil {
		t.Fatalf("failed to create asset store: %v", err)
	}

	userRepo := repositories.NewGORMUserRepository(db)
	categoryRepo := repositories.NewGORMCategoryRepository(db)

	tokenService, err := services.NewTokenService(viper.GetString("JWT_SECRET"))
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}
	authService := services.NewAuthService(userRepo, tokenService)
	categoryService := services.NewCategoryService(categoryRepo, assetStore, nil)

	authHandler := handlers.NewAuthHandler(authService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)

	app := fiber.New()
	app.Static("/uploads", uploadDir)

	apiV1 := app.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)

	protected := apiV1.Group("", middleware.AuthRequired(tokenService))
	authHandler.RegisterProtectedRoutes(protected)
	categoryHandler.RegisterRoutes(protected)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	return app, uploadDir
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	code := m.Run()
	os.Exit(code)
}

func jsonRequest(method, url string, body interface{}) *http.Request {
	jsonBody, _ := json.Marshal(body)
	req := httptest.NewRequest(method, url, bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart form request; fileContent may be nil
// for field-only forms.
func multipartRequest(t *testing.T, method, url, token string, fields map[string]string, fileName string, fileContent []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if fileContent != nil {
		fw, err := w.CreateFormFile("image", fileName)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(fileContent); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// registerAndLogin creates a user and returns a bearer token for it.
func registerAndLogin(t *testing.T, app *fiber.App, username, email, password string) string {
	t.Helper()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &loginResp)
	assert.NotEmpty(t, loginResp.Token)
	return loginResp.Token
}

func TestAuthRegisterAndLogin(t *testing.T) {
	app, _ := setupApp(t)

	// Registration succeeds and never returns the password.
	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	rawBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(rawBody), "testuser")
	assert.NotContains(t, string(rawBody), "password123")

	// Same email, different username: conflict names the email field.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "otheruser",
		"email":    "test@example.com",
		"password": "password123",
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var conflictResp map[string]string
	decodeBody(t, resp, &conflictResp)
	assert.Contains(t, conflictResp["message"], "email")

	// Same username, different email: conflict names the username field.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "testuser",
		"email":    "other@example.com",
		"password": "password123",
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	decodeBody(t, resp, &conflictResp)
	assert.Contains(t, conflictResp["message"], "username")

	// Login succeeds with the registered credentials.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "test@example.com",
		"password": "password123",
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var loginResp struct {
		Token string            `json:"token"`
		User  models.PublicUser `json:"user"`
	}
	decodeBody(t, resp, &loginResp)
	assert.NotEmpty(t, loginResp.Token)
	assert.Equal(t, "testuser", loginResp.User.Username)

	// Wrong password and unknown email fail identically.
	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "test@example.com",
		"password": "wrongpassword",
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var wrongPassResp map[string]string
	decodeBody(t, resp, &wrongPassResp)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "password123",
	}), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var noUserResp map[string]string
	decodeBody(t, resp, &noUserResp)
	assert.Equal(t, wrongPassResp["message"], noUserResp["message"])
}

func TestAuthMe(t *testing.T) {
	app, _ := setupApp(t)
	token := registerAndLogin(t, app, "meuser", "me@example.com", "password123")

	// A freshly issued token is accepted and resolves the user.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var meResp struct {
		User models.PublicUser `json:"user"`
	}
	decodeBody(t, resp, &meResp)
	assert.Equal(t, "meuser", meResp.User.Username)
	assert.Equal(t, "me@example.com", meResp.User.Email)

	// A token with a broken signature is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token+"tampered")
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// No header at all.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestCategoryLifecycle(t *testing.T) {
	app, uploadDir := setupApp(t)
	token := registerAndLogin(t, app, "catuser", "cat@example.com", "password123")

	// Create with an image upload.
	resp, err := app.Test(multipartRequest(t, http.MethodPost, "/api/v1/categories", token,
		map[string]string{"name": "Summer Clothes", "item_count": "3"}, "summer.png", pngBytes), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var summer services.CategoryView
	decodeBody(t, resp, &summer)
	assert.NotEmpty(t, summer.ID)
	assert.Equal(t, "Summer Clothes", summer.Name)
	assert.Equal(t, 3, summer.ItemCount)
	assert.NotNil(t, summer.Image)

	// The uploaded image is on disk and served statically.
	imageFile := filepath.Base(*summer.Image)
	_, statErr := os.Stat(filepath.Join(uploadDir, imageFile))
	assert.NoError(t, statErr)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, *summer.Image, nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Creating the same name again conflicts.
	resp, err = app.Test(multipartRequest(t, http.MethodPost, "/api/v1/categories", token,
		map[string]string{"name": "Summer Clothes"}, "", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// A second category without an image; item_count defaults to 0.
	time.Sleep(5 * time.Millisecond)
	resp, err = app.Test(multipartRequest(t, http.MethodPost, "/api/v1/categories", token,
		map[string]string{"name": "Winter"}, "", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var winter services.CategoryView
	decodeBody(t, resp, &winter)
	assert.Equal(t, 0, winter.ItemCount)
	assert.Nil(t, winter.Image)

	// List returns both, most recently created first.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []services.CategoryView
	decodeBody(t, resp, &list)
	assert.Len(t, list, 2)
	assert.Equal(t, "Winter", list[0].Name)
	assert.Equal(t, "Summer Clothes", list[1].Name)

	// Partial update: only item_count changes, updated_at advances.
	time.Sleep(5 * time.Millisecond)
	resp, err = app.Test(multipartRequest(t, http.MethodPut, "/api/v1/categories/"+summer.ID, token,
		map[string]string{"item_count": "9"}, "", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var updated services.CategoryView
	decodeBody(t, resp, &updated)
	assert.Equal(t, "Summer Clothes", updated.Name)
	assert.Equal(t, 9, updated.ItemCount)
	assert.Equal(t, *summer.Image, *updated.Image)
	assert.True(t, updated.UpdatedAt.After(summer.UpdatedAt))

	// Delete removes the row and the backing image file.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/categories/"+summer.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req = httptest.NewRequest(http.MethodGet, "/api/v1/categories/"+summer.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	_, statErr = os.Stat(filepath.Join(uploadDir, imageFile))
	assert.True(t, os.IsNotExist(statErr))

	// Deleting again is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/categories/"+summer.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCategoryCreateRejectsNonImage(t *testing.T) {
	app, uploadDir := setupApp(t)
	token := registerAndLogin(t, app, "fileuser", "file@example.com", "password123")

	resp, err := app.Test(multipartRequest(t, http.MethodPost, "/api/v1/categories", token,
		map[string]string{"name": "Docs"}, "notes.txt", []byte("plain text, not an image")), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// No row was inserted and nothing reached the upload directory.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req, -1)
	assert.NoError(t, err)
	var list []services.CategoryView
	decodeBody(t, resp, &list)
	assert.Empty(t, list)
	entries, _ := os.ReadDir(uploadDir)
	assert.Empty(t, entries)
}

func TestCategoryValidation(t *testing.T) {
	app, _ := setupApp(t)
	token := registerAndLogin(t, app, "valuser", "val@example.com", "password123")

	// Missing name.
	resp, err := app.Test(multipartRequest(t, http.MethodPost, "/api/v1/categories", token,
		map[string]string{"item_count": "1"}, "", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Non-numeric item_count.
	resp, err = app.Test(multipartRequest(t, http.MethodPost, "/api/v1/categories", token,
		map[string]string{"name": "Shoes", "item_count": "lots"}, "", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Updating a missing category is a 404.
	resp, err = app.Test(multipartRequest(t, http.MethodPut, "/api/v1/categories/missing-id", token,
		map[string]string{"name": "Anything"}, "", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndUnauthenticatedAccess(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "healthy")

	// Every category route requires a token.
	for _, route := range []struct {
		method, url string
	}{
		{http.MethodGet, "/api/v1/categories"},
		{http.MethodPost, "/api/v1/categories"},
		{http.MethodPut, "/api/v1/categories/some-id"},
		{http.MethodDelete, "/api/v1/categories/some-id"},
		{http.MethodGet, "/api/v1/auth/me"},
	} {
		resp, err := app.Test(httptest.NewRequest(route.method, route.url, nil), -1)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", route.method, route.url)
		resp.Body.Close()
	}
}
