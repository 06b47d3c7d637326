package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ericlam1114/datasynthetix-api/internal/auth"
	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/handler"
	"github.com/ericlam1114/datasynthetix-api/internal/middleware"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.FileStore
}

// setupApp creates a Fiber app identical to main.go but self-contained: a
// file-backed job store, no task queue and no AI endpoint. Jobs stay in
// uploading until an external status update moves them, which is exactly what
// the status-update endpoint is for.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		JWT:    config.JWTConfig{Secret: testJWTSecret},
		Processing: config.ProcessingConfig{
			ChunkSize:        1000,
			Overlap:          100,
			ChunkTimeout:     time.Minute,
			DocumentTimeout:  10 * time.Minute,
			BatchTimeout:     30 * time.Minute,
			BatchConcurrency: 2,
			StallThreshold:   30 * time.Second,
			CacheTTL:         5 * time.Second,
			PruneAge:         time.Hour,
			CreditsPerChunk:  1,
			StartingCredits:  1000,
		},
	}

	fileStore, err := store.NewFileStore(t.TempDir(), cfg.Processing.PruneAge)
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	validate := validator.New()

	// Services — nil asynq client skips enqueueing, nil storage uses the
	// local data directory.
	documentService := service.NewDocumentService(nil, t.TempDir())
	processService := service.NewProcessService(fileStore, nil, nil, cfg)
	batchService := service.NewBatchService(fileStore, nil, cfg)

	// Handlers
	processHandler := handler.NewProcessHandler(processService, validate)
	batchHandler := handler.NewBatchHandler(batchService, validate)
	documentHandler := handler.NewDocumentHandler(documentService, validate)

	// Auth handler (for /auth/verify)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"ai":      false,
				"storage": false,
				"redis":   false,
				"auth":    true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated; no rate limiter so tests need no Redis)
	api := app.Group("/api", authMiddleware.Authenticate())

	process := api.Group("/process")
	process.Post("/start", processHandler.Start)
	process.Get("/status", processHandler.Status)
	process.Post("/status", processHandler.UpdateStatus)
	process.Post("/cancel/:jobId", processHandler.Cancel)
	process.Get("/result/:jobId", processHandler.Result)

	batch := api.Group("/batch")
	batch.Post("/start", batchHandler.Start)
	batch.Get("/status/:batchId", batchHandler.Status)

	documents := api.Group("/documents")
	documents.Post("/upload", documentHandler.Upload)
	documents.Delete("/:documentId", documentHandler.Delete)

	return &testApp{app: app, store: fileStore}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	return generateTokenFor(t, "test-user-123")
}

func generateTokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: userID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "datasynthetix-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
