package api

import (
	"net/http"

	"rankshop-api/internal/database"
	"rankshop-api/internal/ranks"
	"rankshop-api/internal/services"

	"github.com/gin-gonic/gin"
)

// GetPlayerRanks returns the ranks a player owns
func GetPlayerRanks(c *gin.Context) {
	username := services.NormalizeUsername(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Username is required",
		})
		return
	}

	entitlements, err := database.GetPlayerEntitlements(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to get player ranks",
		})
		return
	}

	type rankView struct {
		RankID    string `json:"rank_id"`
		Name      string `json:"name"`
		GrantedAt string `json:"granted_at"`
	}

	views := make([]rankView, 0, len(entitlements))
	for _, entitlement := range entitlements {
		name := entitlement.RankID
		if rank := ranks.GetRankByID(entitlement.RankID); rank != nil {
			name = rank.Name
		}
		views = append(views, rankView{
			RankID:    entitlement.RankID,
			Name:      name,
			GrantedAt: entitlement.GrantedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"username": username,
		"ranks":    views,
	})
}

// CheckPlayerExists asks the network proxy whether a username is known
func CheckPlayerExists(c *gin.Context) {
	username := services.NormalizeUsername(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Username is required",
		})
		return
	}

	exists, err := minecraftClient.CheckPlayerExists(username)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": "Failed to reach the network proxy",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"username": username,
		"exists":   exists,
	})
}
