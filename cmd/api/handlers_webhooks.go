package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/database"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// createWebhook registers a callback URL for analysis lifecycle events.
// An empty event list subscribes to every event; the optional secret
// enables signature verification on the receiving side.
func (api *API) createWebhook(c *gin.Context) {
	var req struct {
		URL    string   `json:"url" binding:"required"`
		Secret string   `json:"secret"`
		Events []string `json:"events"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook url must be http or https"})
		return
	}
	for _, event := range req.Events {
		if !validWebhookEvent(event) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unknown event: %s. Valid events: %s", event, strings.Join(models.WebhookEventNames, ", ")),
			})
			return
		}
	}
	events := req.Events
	if len(events) == 0 {
		events = models.WebhookEventNames
	}

	webhook := &models.Webhook{
		ID:       uuid.New().String(),
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   events,
		IsActive: true,
	}
	if err := api.repo.CreateWebhook(c.Request.Context(), webhook); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create webhook: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, webhook)
}

// List webhooks endpoint
func (api *API) listWebhooks(c *gin.Context) {
	webhooks, err := api.repo.ListWebhooks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list webhooks: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"webhooks": webhooks,
		"count":    len(webhooks),
	})
}

// Delete webhook endpoint
func (api *API) deleteWebhook(c *gin.Context) {
	if err := api.repo.DeleteWebhook(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete webhook: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// listWebhookDeliveries returns recent delivery attempts for one
// webhook, most recent first.
func (api *API) listWebhookDeliveries(c *gin.Context) {
	webhookID := c.Param("id")

	if _, err := api.repo.GetWebhook(c.Request.Context(), webhookID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to load webhook: %v", err)})
		return
	}

	limit, _, err := parsePagination(c, 50, 200)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deliveries, err := api.repo.ListWebhookDeliveries(c.Request.Context(), webhookID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list deliveries: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

func validWebhookEvent(event string) bool {
	for _, name := range models.WebhookEventNames {
		if event == name {
			return true
		}
	}
	return false
}
