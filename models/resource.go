package models

// Resource is an uploaded study material (notes, slides, past papers).
// The file itself lives in R2 (or the local uploads dir as a fallback);
// this row only carries metadata and the public URL.
type Resource struct {
	ID     string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	Title       string `gorm:"not null" json:"title"`
	Subject     string `gorm:"index" json:"subject,omitempty"`
	FileURL     string `gorm:"type:text" json:"file_url"`
	ObjectKey   string `gorm:"type:text" json:"-"` // R2 key or local path, for deletes
	ContentType string `gorm:"size:128" json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`

	Timestamps
}
