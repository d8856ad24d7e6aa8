package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/internal/helpers"
	"github.com/pradiptarn/gigtix/internal/middleware"
	"github.com/pradiptarn/gigtix/internal/models"
)

type OrganizationRequest struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	PayoutAccountID string `json:"payout_account_id"`
}

func CreateOrganization(c *gin.Context) {
	var req OrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
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

	organization := models.Organization{
		ID:              uuid.New(),
		Name:            req.Name,
		Description:     req.Description,
		PayoutAccountID: req.PayoutAccountID,
		PayoutStatus:    models.PayoutStatusPending,
		OwnerID:         userID.(uuid.UUID),
	}

	if err := gormDB.Create(&organization).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create organization.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":         "Organization created successfully.",
		"organization_id": organization.ID,
	})
}

// GetOrganizationPayoutStatus reports the stored payout profile next to the
// gateway's live view of the connected account. The stored status only moves
// via the connect webhook, so the two can disagree while a delivery is in
// flight.
func GetOrganizationPayoutStatus(c *gin.Context) {
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

	organization, err := ownedOrganization(gormDB, c.Param("id"), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Organization not found or you don't have permission to view it.")
		return
	}

	response := gin.H{
		"payout_status":     organization.PayoutStatus,
		"payout_account_id": organization.PayoutAccountID,
	}

	if organization.PayoutAccountID != "" {
		gateway := middleware.GetGatewayClient(c)
		if gateway == nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Gateway client not found.")
			return
		}
		account, err := gateway.GetAccount(c.Request.Context(), organization.PayoutAccountID)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadGateway, "Failed to retrieve account from gateway.")
			return
		}
		response["charges_enabled"] = account.ChargesEnabled
		response["details_submitted"] = account.DetailsSubmitted
		response["payouts_enabled"] = account.PayoutsEnabled
	}

	c.JSON(http.StatusOK, response)
}

func GetOrganization(c *gin.Context) {
	organizationID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var organization models.Organization
	if err := gormDB.Preload("Events").Where("id = ?", organizationID).First(&organization).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Organization not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving organization.")
		return
	}

	c.JSON(http.StatusOK, organization)
}
