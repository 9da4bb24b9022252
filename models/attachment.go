package models

// Attachment records an uploaded file belonging to a post. FileName keeps the
// original client-side name; S3Key is the generated name under the uploads
// directory.
type Attachment struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PostID   uint   `gorm:"index;not null" json:"postId"`
	FileName string `gorm:"size:255" json:"fileName"`
	S3Key    string `gorm:"column:s3_key;size:255" json:"s3Key"`
}
