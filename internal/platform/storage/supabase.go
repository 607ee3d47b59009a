package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"

	"orderproof/internal/config"
	"orderproof/internal/core/upload"
	"orderproof/internal/logger"
)

// Supabase stores evidence in a Supabase Storage bucket. Objects are shared
// through the public URL when the bucket is public, otherwise through a
// long-lived signed URL.
type Supabase struct {
	log        *logger.Logger
	client     *supabase.Client
	baseURL    string
	serviceKey string
	bucket     string
	public     bool
	expiresIn  int
	prefix     string
	appEnv     string
	httpClient *http.Client
}

func NewSupabase(cfg config.Config) (*Supabase, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" || cfg.SupabaseBucket == "" {
		return nil, fmt.Errorf("supabase storage requires SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY and SUPABASE_STORAGE_BUCKET")
	}
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}
	return &Supabase{
		log:        logger.New("SupabaseStorage"),
		client:     client,
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.SupabaseBucket,
		public:     cfg.SupabasePublic,
		expiresIn:  cfg.SignedURLExpiry,
		prefix:     "screenshots",
		appEnv:     cfg.AppEnv,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *Supabase) Ping(_ context.Context) error {
	if _, err := s.client.Storage.GetBucket(s.bucketName("")); err != nil {
		return fmt.Errorf("%w: %v", upload.ErrUnavailable, err)
	}
	return nil
}

func (s *Supabase) bucketName(container string) string {
	if container != "" {
		return container
	}
	return s.bucket
}

// Put uploads under <prefix>/<name>; the object path is the returned id.
func (s *Supabase) Put(_ context.Context, container, name string, r io.Reader, contentType string) (string, error) {
	bucket := s.bucketName(container)
	objectPath := path.Join(s.prefix, name)
	upsert := true
	if _, err := s.client.Storage.UploadFile(bucket, objectPath, r, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("supabase upload %s/%s: %w", bucket, objectPath, err)
	}
	s.log.LogDebugf("Stored %s/%s", bucket, objectPath)
	return objectPath, nil
}

func (s *Supabase) Share(ctx context.Context, container, objectID string) (string, error) {
	bucket := s.bucketName(container)
	if s.public {
		res := s.client.Storage.GetPublicUrl(bucket, objectID)
		if res.SignedURL == "" {
			return "", fmt.Errorf("empty public url for %s/%s", bucket, objectID)
		}
		return res.SignedURL, nil
	}
	return s.signedURL(ctx, bucket, objectID, s.expiresIn)
}

// signedURL calls the sign endpoint directly so every request carries fresh
// service-role headers.
func (s *Supabase) signedURL(ctx context.Context, bucket, objectPath string, expiresIn int) (string, error) {
	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, bucket, objectPath)
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(map[string]int{"expiresIn": expiresIn}); err != nil {
		return "", fmt.Errorf("encode sign body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, buf)
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sign %s/%s: status %d", bucket, objectPath, resp.StatusCode)
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("decode signed url response: %w", err)
	}
	return s.absolute(signed.SignedURL), nil
}

func (s *Supabase) absolute(signedPath string) string {
	p := signedPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasPrefix(p, "/storage/v1/") {
		p = "/storage/v1" + p
	}
	u := s.baseURL + p
	if s.appEnv == "local" || s.appEnv == "development" {
		u = strings.Replace(u, "host.docker.internal", "127.0.0.1", 1)
	}
	return u
}
