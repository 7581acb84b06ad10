package services

import (
	"errors"
	"log"
	"path/filepath"

	"study-progress-system/models"
	"study-progress-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type ResourceService struct {
	DB *gorm.DB
}

func NewResourceService(db *gorm.DB) *ResourceService {
	return &ResourceService{DB: db}
}

// UploadResource stores a study material. The file goes to R2 when the R2
// client is configured, otherwise to the local uploads dir behind /uploads.
func (s *ResourceService) UploadResource(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	if file.Size > 100*1024*1024 { // 100MB
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file too large (max 100MB)"})
	}

	title := utils.NormalizeText(c.FormValue("title"))
	if title == "" {
		title = file.Filename
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".bin"
	}
	key := "resources/" + uuid.NewString() + "-" + slug.Make(title) + ext

	var fileURL string
	if utils.R2Enabled() {
		fileURL, err = utils.UploadFileToR2(file, key)
		if err != nil {
			log.Printf("R2 upload failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "failed to upload file"})
		}
	} else {
		localPath := utils.GetUploadPath(key)
		if err := utils.SaveUpload(file, localPath); err != nil {
			log.Printf("Local save failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "failed to save file"})
		}
		fileURL = "/uploads/" + key
	}

	resource := &models.Resource{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Subject:     utils.NormalizeText(c.FormValue("subject")),
		FileURL:     fileURL,
		ObjectKey:   key,
		ContentType: file.Header.Get("Content-Type"),
		SizeBytes:   file.Size,
	}
	if err := s.DB.Create(resource).Error; err != nil {
		log.Printf("DB Error creating resource: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save resource"})
	}

	log.Printf("📎 Resource uploaded: %s (%d bytes) by %s", resource.Title, resource.SizeBytes, userID)
	return c.Status(fiber.StatusCreated).JSON(resource)
}

// GetResources lists the caller's resources, optionally filtered by subject
func (s *ResourceService) GetResources(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	query := s.DB.Where("user_id = ?", userID)
	if subject := c.Query("subject"); subject != "" {
		query = query.Where("subject = ?", subject)
	}

	var resources []models.Resource
	if err := query.Order("created_at DESC").Find(&resources).Error; err != nil {
		log.Printf("DB Error listing resources: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch resources"})
	}
	return c.JSON(resources)
}

// DeleteResource removes the metadata row and best-effort deletes the file
func (s *ResourceService) DeleteResource(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	resourceID := c.Params("id")
	if _, err := uuid.Parse(resourceID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid resource ID"})
	}

	var resource models.Resource
	if err := s.DB.Where("id = ? AND user_id = ?", resourceID, userID).First(&resource).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Resource not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if err := s.DB.Delete(&resource).Error; err != nil {
		log.Printf("DB Error deleting resource: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete resource"})
	}

	// the row is gone; a stranded object only costs storage
	if utils.R2Enabled() {
		if err := utils.DeleteFromR2(resource.ObjectKey); err != nil {
			log.Printf("⚠️ Failed to delete R2 object %s: %v", resource.ObjectKey, err)
		}
	} else {
		if err := utils.RemoveUpload(utils.GetUploadPath(resource.ObjectKey)); err != nil {
			log.Printf("⚠️ Failed to delete local file %s: %v", resource.ObjectKey, err)
		}
	}

	return c.JSON(fiber.Map{"message": "Resource deleted successfully"})
}
