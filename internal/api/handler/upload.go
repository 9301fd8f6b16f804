package handler

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cuongbtq/invoice-ocr/internal/api/dto"
)

// upload is a received file with its sniffed media type.
type upload struct {
	filename    string
	contentType string
	data        []byte
}

func readUpload(fh *multipart.FileHeader) (*upload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	contentType, _, err := mime.ParseMediaType(mimetype.Detect(data).String())
	if err != nil {
		contentType = "application/octet-stream"
	}

	return &upload{
		filename:    fh.Filename,
		contentType: contentType,
		data:        data,
	}, nil
}

func (u *upload) accepted() bool {
	return dto.IsAcceptedContentType(u.contentType)
}

// baseName strips any client-side directories from a filename.
func baseName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return "document"
	}
	return name
}

func unsupportedTypeMessage(contentType string) string {
	return fmt.Sprintf("Unsupported file type %s. Only PDF, JPEG, JPG, and PNG files are supported", contentType)
}
