package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"casalista/config"
)

// CloudinaryHost uploads through Cloudinary's unsigned upload endpoint.
// Only the upload preset is needed client-side; deletion requires a
// privileged credential and goes through the imagesToDelete work-queue
// instead.
type CloudinaryHost struct {
	uploadURL string
	preset    string
	client    *http.Client
}

func NewCloudinaryHost(cfg *config.ImageHostConfig, client *http.Client) *CloudinaryHost {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &CloudinaryHost{
		uploadURL: fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cfg.CloudName),
		preset:    cfg.UploadPreset,
		client:    client,
	}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

func (h *CloudinaryHost) Upload(ctx context.Context, name string, r io.Reader, size int64, progress func(pct int)) (Asset, error) {
	// Read up front so the multipart body length is known and transfer
	// progress can be derived from bytes consumed.
	data, err := readAllLimited(r)
	if err != nil {
		return Asset{}, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("upload_preset", h.preset); err != nil {
		return Asset{}, err
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return Asset{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Asset{}, err
	}
	if err := writer.Close(); err != nil {
		return Asset{}, err
	}

	total := int64(body.Len())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uploadURL,
		newProgressReader(&body, total, progress))
	if err != nil {
		return Asset{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = total

	resp, err := h.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Asset{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Asset{}, fmt.Errorf("cloudinary upload failed: %d - %s", resp.StatusCode, string(respBody))
	}

	var parsed cloudinaryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Asset{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.SecureURL == "" {
		return Asset{}, fmt.Errorf("cloudinary response missing secure_url")
	}

	if progress != nil {
		progress(100)
	}
	return Asset{SecureURL: parsed.SecureURL, PublicID: parsed.PublicID}, nil
}

// maxUploadBytes caps a single image upload.
const maxUploadBytes = 50 * 1024 * 1024

// readAllLimited reads r fully and rejects files over maxUploadBytes with
// an explicit error; truncating and uploading the prefix would persist a
// corrupt image.
func readAllLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	return data, nil
}

// progressReader reports transfer progress as the request body drains. It
// caps at 99 until the response confirms the upload.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	progress func(pct int)
	lastPct  int
}

func newProgressReader(r io.Reader, total int64, progress func(pct int)) *progressReader {
	return &progressReader{r: r, total: total, progress: progress, lastPct: -1}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)

	if p.progress != nil && p.total > 0 && n > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.progress(pct)
		}
	}
	return n, err
}
