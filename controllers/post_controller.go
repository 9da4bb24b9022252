package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lch-dev/board2/middleware"
	"github.com/lch-dev/board2/models"
	"github.com/lch-dev/board2/utils"
)

// PostController manages posts, comments, attachments and search.
type PostController struct {
	db *gorm.DB
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB) *PostController {
	return &PostController{db: db}
}

// postRow is a post joined with its author's nickname.
type postRow struct {
	ID             uint      `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ViewCount      int64     `gorm:"column:view_count" json:"viewCount"`
	AuthorID       string    `gorm:"column:author_id" json:"authorId"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"createdAt"`
	AuthorNickname string    `gorm:"column:author_nickname" json:"authorNickname"`
}

type attachmentRow struct {
	ID       uint   `json:"id"`
	FileName string `gorm:"column:file_name" json:"fileName"`
	S3Key    string `gorm:"column:s3_key" json:"s3Key"`
}

type commentRow struct {
	ID             uint      `json:"id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"createdAt"`
	AuthorID       string    `gorm:"column:author_id" json:"authorId"`
	AuthorNickname string    `gorm:"column:author_nickname" json:"authorNickname"`
}

const postSelect = "posts.id, posts.title, posts.content, posts.view_count, posts.author_id, posts.created_at, users.nickname AS author_nickname"

func (p *PostController) postQuery() *gorm.DB {
	return p.db.Table("posts").
		Select(postSelect).
		Joins("JOIN users ON users.user_id = posts.author_id")
}

// pageEnvelope builds the pagination payload the frontend expects.
func pageEnvelope(rows []postRow, total int64, page, size int) gin.H {
	return gin.H{
		"totalPages":    (total + int64(size) - 1) / int64(size),
		"totalElements": total,
		"pageable":      gin.H{"pageNumber": page, "pageSize": size},
		"content":       rows,
	}
}

// ListPosts returns paginated posts, newest first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, size := parsePagination(ctx.Query("page"), ctx.Query("size"))

	cacheKey := fmt.Sprintf("cache:posts:list:page=%d:size=%d", page, size)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var total int64
	if err := p.db.Model(&models.Post{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to count posts")
		return
	}

	rows := make([]postRow, 0, size)
	if err := p.postQuery().
		Order("posts.created_at DESC, posts.id DESC").
		Limit(size).Offset(page * size).
		Scan(&rows).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to list posts")
		return
	}

	payload := pageEnvelope(rows, total, page, size)
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Success: true, Message: "Success", Data: payload}, time.Hour)
	utils.Success(ctx, "Success", payload)
}

// SearchPosts filters posts whose title or content contains the keyword. A
// qualifying search by an authenticated caller is logged to search history
// before the query runs.
func (p *PostController) SearchPosts(ctx *gin.Context) {
	keyword := strings.TrimSpace(ctx.Query("keyword"))
	page, size := parsePagination(ctx.Query("page"), ctx.Query("size"))

	if userID, ok := getUserID(ctx); ok && len([]rune(keyword)) >= 2 {
		if err := p.db.Create(&models.SearchHistory{UserID: userID, Keyword: keyword}).Error; err != nil {
			utils.Sugar.Warnf("failed to record search history: %v", err)
		}
	}

	pattern := "%" + keyword + "%"
	filtered := func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.title LIKE ? OR posts.content LIKE ?", pattern, pattern)
	}

	var total int64
	if err := filtered(p.db.Table("posts")).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to count posts")
		return
	}

	rows := make([]postRow, 0, size)
	if err := filtered(p.postQuery()).
		Order("posts.created_at DESC, posts.id DESC").
		Limit(size).Offset(page * size).
		Scan(&rows).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to search posts")
		return
	}

	utils.Success(ctx, "Success", pageEnvelope(rows, total, page, size))
}

// SearchHistory returns the caller's 10 most recent distinct keywords, most
// recent first.
func (p *PostController) SearchHistory(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	keywords := make([]string, 0, 10)
	if err := p.db.Model(&models.SearchHistory{}).
		Where("user_id = ?", userID).
		Group("keyword").
		Order("MAX(created_at) DESC, MAX(id) DESC").
		Limit(10).
		Pluck("keyword", &keywords).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to load search history")
		return
	}

	utils.Success(ctx, "Success", gin.H{"keywords": keywords})
}

// GetPost returns a post with its attachments and comments. Every fetch
// increments the view counter, repeat viewers included.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID := ctx.Param("postId")

	if err := p.db.Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to load post")
		return
	}

	var row postRow
	res := p.postQuery().Where("posts.id = ?", postID).Limit(1).Scan(&row)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to load post")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, "Not found")
		return
	}

	attachments := make([]attachmentRow, 0)
	if err := p.db.Model(&models.Attachment{}).
		Select("id, file_name, s3_key").
		Where("post_id = ?", row.ID).
		Scan(&attachments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to load attachments")
		return
	}

	comments := make([]commentRow, 0)
	if err := p.db.Table("comments").
		Select("comments.id, comments.content, comments.created_at, comments.author_id, users.nickname AS author_nickname").
		Joins("JOIN users ON users.user_id = comments.author_id").
		Where("comments.post_id = ?", row.ID).
		Order("comments.created_at ASC, comments.id ASC").
		Scan(&comments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to load comments")
		return
	}

	utils.Success(ctx, "Success", struct {
		postRow
		Attachments []attachmentRow `json:"attachments"`
		Comments    []commentRow    `json:"comments"`
	}{row, attachments, comments})
}

type postPayload struct {
	Title                string `json:"title"`
	Content              string `json:"content"`
	DeletedAttachmentIds []uint `json:"deletedAttachmentIds"`
}

// parsePostPayload decodes the multipart "request" JSON blob into a typed
// record, rejecting unknown fields instead of silently defaulting.
func parsePostPayload(ctx *gin.Context) (*postPayload, error) {
	blob := ctx.PostForm("request")
	if blob == "" {
		return nil, fmt.Errorf("missing request payload")
	}
	dec := json.NewDecoder(strings.NewReader(blob))
	dec.DisallowUnknownFields()
	var req postPayload
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request payload")
	}
	req.Title = utils.Sanitize(strings.TrimSpace(req.Title))
	req.Content = utils.Sanitize(req.Content)
	if req.Title == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content cannot be empty")
	}
	return &req, nil
}

// saveAttachments stores each uploaded file on disk and records a row per file.
func (p *PostController) saveAttachments(ctx *gin.Context, postID uint, field string) error {
	form, err := ctx.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	for _, fh := range form.File[field] {
		key, err := utils.SaveUpload(ctx, fh)
		if err != nil {
			return err
		}
		att := models.Attachment{PostID: postID, FileName: fh.Filename, S3Key: key}
		if err := p.db.Create(&att).Error; err != nil {
			utils.RemoveUpload(key)
			return err
		}
	}
	return nil
}

// CreatePost inserts a new post for the caller with optional file uploads.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, err := parsePostPayload(ctx)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, err.Error())
		return
	}

	post := models.Post{Title: req.Title, Content: req.Content, AuthorID: userID}
	if err := p.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to create post")
		return
	}
	if err := p.saveAttachments(ctx, post.ID, "files"); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to store attachment")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.Success(ctx, "Post created", strconv.FormatUint(uint64(post.ID), 10))
}

// UpdatePost edits a post's title/content, removes the listed attachments and
// stores newly uploaded ones. Only the author may update; a missing post is
// reported the same way as foreign ownership.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID := ctx.Param("postId")
	var post models.Post
	if err := p.db.First(&post, "id = ?", postID).Error; err != nil || post.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, "Forbidden")
		return
	}

	req, err := parsePostPayload(ctx)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, err.Error())
		return
	}

	if err := p.db.Model(&post).Updates(map[string]interface{}{
		"title":   req.Title,
		"content": req.Content,
	}).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to update post")
		return
	}

	if len(req.DeletedAttachmentIds) > 0 {
		// scoped to this post so ids belonging to other posts are ignored
		var doomed []models.Attachment
		if err := p.db.Where("id IN ? AND post_id = ?", req.DeletedAttachmentIds, post.ID).
			Find(&doomed).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, "failed to load attachments")
			return
		}
		if err := p.db.Delete(&models.Attachment{}, "id IN ? AND post_id = ?", req.DeletedAttachmentIds, post.ID).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, "failed to delete attachments")
			return
		}
		for _, att := range doomed {
			utils.RemoveUpload(att.S3Key)
		}
	}

	if err := p.saveAttachments(ctx, post.ID, "newFiles"); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to store attachment")
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.Success(ctx, "Post updated", postID)
}

// DeletePost removes a post together with its comments and attachments. The
// three deletes run in one transaction so a failure leaves no orphans.
func (p *PostController) DeletePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID := ctx.Param("postId")
	var post models.Post
	if err := p.db.First(&post, "id = ?", postID).Error; err != nil || post.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, "Forbidden")
		return
	}

	var attachments []models.Attachment
	if err := p.db.Where("post_id = ?", post.ID).Find(&attachments).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to load attachments")
		return
	}

	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Post{}, "id = ?", post.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Comment{}, "post_id = ?", post.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Attachment{}, "post_id = ?", post.ID).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to delete post")
		return
	}

	for _, att := range attachments {
		utils.RemoveUpload(att.S3Key)
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.Sugar.Infof("post %d deleted by %s", post.ID, userID)
	utils.Success(ctx, "Post deleted", nil)
}

// CreateComment adds a comment under a post. The post must exist.
func (p *PostController) CreateComment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, "content cannot be empty")
		return
	}

	postID := ctx.Param("postId")
	var post models.Post
	if err := p.db.First(&post, "id = ?", postID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, "Not found")
		return
	}

	comment := models.Comment{PostID: post.ID, AuthorID: userID, Content: content}
	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to create comment")
		return
	}

	utils.Success(ctx, "Comment added", nil)
}

// DeleteComment removes a comment. Only the comment's author may delete it;
// a missing comment is reported the same way as foreign ownership.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
		return
	}

	commentID := ctx.Param("commentId")
	var comment models.Comment
	if err := p.db.First(&comment, "id = ?", commentID).Error; err != nil || comment.AuthorID != userID {
		utils.Error(ctx, http.StatusForbidden, "Forbidden")
		return
	}

	if err := p.db.Delete(&models.Comment{}, "id = ?", comment.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, "failed to delete comment")
		return
	}

	utils.Success(ctx, "Comment deleted", nil)
}

// parsePagination reads page/size query values with the legacy defaults:
// page 0, size 10, offset page*size.
func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 0
	size := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p >= 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		size = s
	}
	return page, size
}

func getUserID(ctx *gin.Context) (string, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}
