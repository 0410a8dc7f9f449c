package api

import (
	"net/http"

	"rankshop-api/internal/database"

	"github.com/gin-gonic/gin"
)

// ListPendingPurchases returns every purchase still awaiting reconciliation
func ListPendingPurchases(c *gin.Context) {
	pending, err := database.ListPendingPurchases()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list pending purchases",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(pending),
		"pending": pending,
	})
}
