package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"readzone/internal/model"
	"readzone/internal/service"
	"readzone/internal/util"
	"readzone/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type ReactionHandler struct {
	reactionService service.ReactionService
	wsHub           *websocket.Hub
}

func NewReactionHandler(reactionService service.ReactionService, wsHub *websocket.Hub) *ReactionHandler {
	return &ReactionHandler{
		reactionService: reactionService,
		wsHub:           wsHub,
	}
}

// ApplyBatch handles a batch of toggle intents
// POST /api/v1/likes/batch
func (h *ReactionHandler) ApplyBatch(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	var req model.BatchReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ErrorResponseWithType(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid batch payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		util.ErrorResponseWithType(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid batch payload")
		return
	}

	results, summary, err := h.reactionService.ApplyBatch(userID.(string), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyBatch):
			util.ErrorResponseWithType(c, http.StatusBadRequest, "EMPTY_BATCH", "Batch contains no items")
		case errors.Is(err, service.ErrBatchTooLarge):
			util.ErrorResponseWithType(c, http.StatusBadRequest, "BATCH_TOO_LARGE", "Batch exceeds the maximum of 50 items")
		default:
			util.ErrorResponse(c, http.StatusInternalServerError, "Batch processing failed", nil)
		}
		return
	}

	// Per-item errors are embedded in results; the batch itself succeeded.
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
		"summary": summary,
	})

	// Push updated counts to any connected UIs
	if h.wsHub != nil {
		updates := make(map[string]interface{}, len(results))
		for key, result := range results {
			if result.Error == "" {
				updates[key] = gin.H{"isLiked": result.IsLiked, "likeCount": result.LikeCount}
			}
		}
		if len(updates) > 0 {
			h.wsHub.BroadcastToAll(map[string]interface{}{
				"type":    "reaction_update",
				"results": updates,
			})
		}
	}
}

// BatchStatus reports batch processor limits, for monitoring
// GET /api/v1/likes/batch/status
func (h *ReactionHandler) BatchStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "batch-like-processor",
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"limits": gin.H{
			"maxBatchSize": service.MaxBatchSize,
			"maxRetries":   3,
		},
	})
}

// Toggle flips the reaction for one target (fallback when batch mode is unavailable)
// POST /api/v1/reactions/:type/:id/toggle
func (h *ReactionHandler) Toggle(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	targetType := c.Param("type")
	targetID := c.Param("id")
	if !model.ValidTargetType(targetType) || targetID == "" {
		util.NotFound(c, "Unknown reaction target")
		return
	}

	result, err := h.reactionService.Toggle(userID.(string), targetType, targetID)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Reaction toggle failed", nil)
		return
	}

	switch result.Error {
	case "":
	case service.ItemErrForbidden:
		util.Forbidden(c, "You cannot like your own comment")
		return
	case service.ItemErrNotFound:
		util.NotFound(c, "Target not found")
		return
	default:
		util.ErrorResponse(c, http.StatusInternalServerError, "Reaction toggle failed", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Reaction toggled", gin.H{
		"isLiked":   result.IsLiked,
		"likeCount": result.LikeCount,
	})

	if h.wsHub != nil {
		h.wsHub.BroadcastToAll(map[string]interface{}{
			"type":        "reaction_update",
			"target_type": targetType,
			"target_id":   targetID,
			"isLiked":     result.IsLiked,
			"likeCount":   result.LikeCount,
		})
	}
}

// GetLikeCount returns the like count for a target
// GET /api/v1/likes/count?target_type=review&target_id=xxx
func (h *ReactionHandler) GetLikeCount(c *gin.Context) {
	targetType := c.Query("target_type")
	targetID := c.Query("target_id")

	if targetType == "" || targetID == "" {
		util.BadRequest(c, "target_type and target_id are required")
		return
	}

	count, err := h.reactionService.GetLikeCount(targetType, targetID)
	if err != nil {
		util.ErrorResponse(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Like count retrieved successfully", gin.H{"count": count})
}

// GetLikedTargets returns which of the given targets the actor has liked,
// used by clients to seed their local reaction state
// GET /api/v1/likes/status?target_type=review&ids=a,b,c
func (h *ReactionHandler) GetLikedTargets(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		util.Unauthorized(c, "User not authenticated")
		return
	}

	targetType := c.Query("target_type")
	idsParam := c.Query("ids")
	if targetType == "" || idsParam == "" {
		util.BadRequest(c, "target_type and ids are required")
		return
	}

	ids := strings.Split(idsParam, ",")
	liked, err := h.reactionService.GetLikedTargets(userID.(string), targetType, ids)
	if err != nil {
		util.ErrorResponse(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Liked targets retrieved successfully", gin.H{"liked": liked})
}
