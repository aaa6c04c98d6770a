package cloudinary

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/fazamuttaqien/permitting/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

func InitCloudinary(cfg *config.Config) (*cloudinary.Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CLOUDINARY_CLOUD, cfg.CLOUDINARY_API_KEY, cfg.CLOUDINARY_API_SECRET)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	return cld, nil
}

// Uploader stores issued permit documents.
type Uploader struct {
	client *cloudinary.Cloudinary
	folder string
}

func NewUploader(client *cloudinary.Cloudinary, folder string) *Uploader {
	return &Uploader{client: client, folder: folder}
}

// UploadDocument uploads file under the configured folder, named after the
// application number so a retried upload overwrites instead of duplicating.
func (u *Uploader) UploadDocument(ctx context.Context, file *multipart.FileHeader, applicationNumber string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	result, err := u.client.Upload.Upload(ctx, src, uploader.UploadParams{
		Folder:       u.folder,
		PublicID:     generatePublicID(applicationNumber, file.Filename),
		ResourceType: "auto",
		Overwrite:    func(b bool) *bool { return &b }(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload to Cloudinary: %s", result.Error.Message)
	}

	return result.SecureURL, nil
}

func generatePublicID(applicationNumber, filename string) string {
	if applicationNumber != "" {
		return "permit_" + strings.ReplaceAll(applicationNumber, "/", "-")
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return fmt.Sprintf("%s_%d", base, time.Now().Unix())
}
