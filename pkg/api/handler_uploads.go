package api

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/targc/numbervault/pkg/ingest"
	"github.com/targc/numbervault/pkg/models"
)

// UploadFormField is the multipart field holding the batch file.
const UploadFormField = "file"

type ListUploadsResponse struct {
	Jobs  []models.IngestionJob `json:"jobs"`
	Total int                   `json:"total"`
}

func (s *Server) HandleUpload(c fiber.Ctx) error {
	fh, err := c.FormFile(UploadFormField)
	if err != nil {
		return writeError(c, fmt.Errorf("missing %q form file: %w", UploadFormField, models.ErrMalformedInput))
	}

	f, err := fh.Open()
	if err != nil {
		return writeError(c, fmt.Errorf("failed to read upload: %w", err))
	}
	defer f.Close()

	job, err := s.uploader.Upload(c.Context(), ingest.UploadRequest{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
		UploadedBy:  actorOf(c),
	})

	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (s *Server) HandleListUploads(c fiber.Ctx) error {
	jobs, err := s.uploader.List(c.Context())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(ListUploadsResponse{
		Jobs:  jobs,
		Total: len(jobs),
	})
}

func (s *Server) HandleGetUpload(c fiber.Ctx) error {
	job, err := s.uploader.Status(c.Context(), c.Params("batchId"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(job)
}
