package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/internal/helpers"
	"github.com/pradiptarn/gigtix/internal/models"
)

// ownedOrganization loads the organization and verifies the requesting user
// owns it. Handlers that mutate events go through this check.
func ownedOrganization(gormDB *gorm.DB, organizationID, userID interface{}) (*models.Organization, error) {
	var organization models.Organization
	err := gormDB.Where("id = ? AND owner_id = ?", organizationID, userID).First(&organization).Error
	if err != nil {
		return nil, err
	}
	return &organization, nil
}

func CreateEvent(c *gin.Context) {
	title := c.PostForm("title")
	description := c.PostForm("description")
	venue := c.PostForm("venue")
	city := c.PostForm("city")

	organizationIDStr := c.PostForm("organization_id")
	organizationID, err := uuid.Parse(organizationIDStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid organization ID.")
		return
	}

	startTimeStr := c.PostForm("start_time")
	endTimeStr := c.PostForm("end_time")
	startTime, err := time.Parse(time.RFC3339, startTimeStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid start time format.")
		return
	}
	endTime, err := time.Parse(time.RFC3339, endTimeStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid end time format.")
		return
	}

	var categories []string
	for i := 0; ; i++ {
		category := c.PostForm(fmt.Sprintf("categories[%d]", i))
		if category == "" {
			break
		}
		categories = append(categories, category)
	}

	if title == "" || description == "" || venue == "" {
		helpers.RespondWithError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	if _, err := ownedOrganization(gormDB, organizationID, userID); err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Organization not found or you don't have permission to create events for it.")
		return
	}

	var eventCategories []models.Category
	for _, categoryName := range categories {
		var category models.Category
		if err := gormDB.Where("name = ?", categoryName).FirstOrCreate(&category, models.Category{Name: categoryName}).Error; err != nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Error processing categories.")
			return
		}
		eventCategories = append(eventCategories, category)
	}

	event := models.Event{
		ID:             uuid.New(),
		Title:          title,
		Description:    description,
		StartTime:      startTime,
		EndTime:        endTime,
		Venue:          venue,
		City:           city,
		Status:         models.EventStatusDraft,
		OrganizationID: organizationID,
		Categories:     eventCategories,
	}

	bannerFile, err := c.FormFile("banner")
	if err == nil {
		bannerPath, err := helpers.UploadFile(c, bannerFile, "event_banners")
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		event.BannerPath = bannerPath
	}

	if err := gormDB.Create(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create event.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Event created successfully.",
		"event_id": event.ID,
	})
}

func GetEvent(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Preload("Categories").Preload("Organization").Preload("TicketTypes").Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	c.JSON(http.StatusOK, event)
}

func ListEvents(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	page := c.DefaultQuery("page", "1")
	limit := c.DefaultQuery("limit", "10")
	city := c.Query("city")

	pageNum, err := helpers.StringToInt(page)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return
	}

	limitNum, err := helpers.StringToInt(limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return
	}

	query := gormDB.Model(&models.Event{}).Where("status = ?", models.EventStatusPublished)
	if city != "" {
		query = query.Where("city = ?", city)
	}

	var totalCount int64
	query.Count(&totalCount)

	var events []models.Event
	offset := (pageNum - 1) * limitNum
	err = query.Preload("Categories").Preload("Organization").Preload("TicketTypes").Offset(offset).Limit(limitNum).Order("start_time ASC").Find(&events).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"total":       totalCount,
		"page":        pageNum,
		"limit":       limitNum,
		"total_pages": (totalCount + int64(limitNum) - 1) / int64(limitNum),
	})
}

func UpdateEvent(c *gin.Context) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error finding event.")
		return
	}

	if _, err := ownedOrganization(gormDB, event.OrganizationID, userID); err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to update this event.")
		return
	}

	if title := c.PostForm("title"); title != "" {
		event.Title = title
	}
	if description := c.PostForm("description"); description != "" {
		event.Description = description
	}
	if venue := c.PostForm("venue"); venue != "" {
		event.Venue = venue
	}
	if city := c.PostForm("city"); city != "" {
		event.City = city
	}
	if startTimeStr := c.PostForm("start_time"); startTimeStr != "" {
		startTime, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid start time format.")
			return
		}
		event.StartTime = startTime
	}
	if endTimeStr := c.PostForm("end_time"); endTimeStr != "" {
		endTime, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid end time format.")
			return
		}
		event.EndTime = endTime
	}

	bannerFile, err := c.FormFile("banner")
	if err == nil {
		bannerPath, err := helpers.UploadFile(c, bannerFile, "event_banners")
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		if event.BannerPath != "" {
			if err := helpers.DeleteFile(event.BannerPath); err != nil {
				fmt.Printf("Error deleting old banner: %v\n", err)
			}
		}
		event.BannerPath = bannerPath
	}

	if err := gormDB.Save(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully.",
		"event":   event,
	})
}

func PublishEvent(c *gin.Context) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error finding event.")
		return
	}

	if _, err := ownedOrganization(gormDB, event.OrganizationID, userID); err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to publish this event.")
		return
	}

	if event.Status == models.EventStatusPublished {
		c.JSON(http.StatusOK, gin.H{"message": "Event is already published."})
		return
	}

	if err := gormDB.Model(&event).Update("status", models.EventStatusPublished).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to publish event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event published successfully."})
}

func DeleteEvent(c *gin.Context) {
	eventID := c.Param("id")
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error finding event.")
		return
	}

	if _, err := ownedOrganization(gormDB, event.OrganizationID, userID); err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to delete this event.")
		return
	}

	if err := gormDB.Delete(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event deleted successfully.",
	})
}
