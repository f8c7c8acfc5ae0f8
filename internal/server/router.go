package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/philthes/SwiftRiver/internal/drops"
	"github.com/philthes/SwiftRiver/internal/rivers"
	"go.uber.org/zap"
)

// Viewer identity is resolved upstream and forwarded in a trusted header.
const viewerIDHeader = "X-Viewer-ID"

var errMissingRiversService = errors.New("rivers service dependency required")

type Dependencies struct {
	RiversService *rivers.Service
	Logger        *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.RiversService == nil {
		return nil, errMissingRiversService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", viewerIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		riversService: deps.RiversService,
		logger:        logger,
	}

	router.GET("/rivers", handler.handleListRivers)
	router.POST("/rivers", handler.handleCreateRiver)
	router.GET("/rivers/search", handler.handleSearchRivers)

	river := router.Group("/rivers/:river_id")
	river.GET("", handler.handleGetRiver)
	river.PUT("", handler.handleUpdateRiver)
	river.DELETE("", handler.handleDeleteRiver)
	river.POST("/extend", handler.handleExtendLifetime)
	river.POST("/token", handler.handleSetToken)

	river.GET("/drops", handler.handleGetDrops)
	river.GET("/drops/max_id", handler.handleGetMaxDropID)

	river.GET("/channels", handler.handleGetChannels)
	river.POST("/channels", handler.handleCreateChannel)
	river.PUT("/channels/:filter_id", handler.handleSetChannelEnabled)
	river.POST("/channels/:filter_id/options", handler.handleAddChannelOption)
	river.DELETE("/channels/:filter_id/options/:option_id", handler.handleRemoveChannelOption)

	river.GET("/collaborators", handler.handleListCollaborators)
	river.POST("/collaborators", handler.handleAddCollaborator)
	river.PUT("/collaborators/:user_id", handler.handleSetCollaboratorActive)
	river.DELETE("/collaborators/:user_id", handler.handleRemoveCollaborator)

	river.POST("/subscription", handler.handleSubscribe)
	river.DELETE("/subscription", handler.handleUnsubscribe)

	return router, nil
}

type httpHandler struct {
	riversService *rivers.Service
	logger        *zap.Logger
}

func (h *httpHandler) viewerID(c *gin.Context) int64 {
	header := strings.TrimSpace(c.GetHeader(viewerIDHeader))
	if header == "" {
		return 0
	}
	viewerID, err := strconv.ParseInt(header, 10, 64)
	if err != nil || viewerID < 0 {
		return 0
	}
	return viewerID
}

func (h *httpHandler) riverID(c *gin.Context) (int64, bool) {
	riverID, err := strconv.ParseInt(c.Param("river_id"), 10, 64)
	if err != nil || riverID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_river_id"})
		return 0, false
	}
	return riverID, true
}

// respondError maps service error kinds to HTTP statuses and surfaces the
// operation code when the service attached one.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal_error"
	switch {
	case errors.Is(err, rivers.ErrValidation):
		status, message = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, rivers.ErrInvalidToken):
		status, message = http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, rivers.ErrQuotaExceeded):
		status, message = http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, rivers.ErrNotFound):
		status, message = http.StatusNotFound, "not_found"
	case errors.Is(err, rivers.ErrRiverFull):
		status, message = http.StatusConflict, "river_full"
	default:
		h.logger.Error("request failed", zap.Error(err))
	}

	payload := gin.H{"error": message}
	var serviceError *rivers.ServiceError
	if errors.As(err, &serviceError) {
		payload["code"] = serviceError.Code()
	}
	c.JSON(status, payload)
}

// requireReadAccess loads the river and enforces the feed visibility rule:
// public rivers are open, private ones need a valid access token or an
// owning viewer.
func (h *httpHandler) requireReadAccess(c *gin.Context, riverID int64) (rivers.River, bool) {
	river, err := h.riversService.GetRiver(c.Request.Context(), riverID)
	if err != nil {
		h.respondError(c, err)
		return rivers.River{}, false
	}
	if river.Public {
		return river, true
	}
	if token := strings.TrimSpace(c.Query("token")); token != "" && river.ValidToken(token) {
		return river, true
	}

	owner, err := h.riversService.IsOwner(c.Request.Context(), &river, h.viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return rivers.River{}, false
	}
	if !owner {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return rivers.River{}, false
	}
	return river, true
}

// requireOwner enforces owner access for mutating operations.
func (h *httpHandler) requireOwner(c *gin.Context, riverID int64) (rivers.River, bool) {
	river, err := h.riversService.GetRiver(c.Request.Context(), riverID)
	if err != nil {
		h.respondError(c, err)
		return rivers.River{}, false
	}
	owner, err := h.riversService.IsOwner(c.Request.Context(), &river, h.viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return rivers.River{}, false
	}
	if !owner {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return rivers.River{}, false
	}
	return river, true
}

type riverRequestPayload struct {
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Public    bool   `json:"public"`
	Layout    string `json:"layout"`
	AccountID int64  `json:"account_id"`
}

func (h *httpHandler) handleCreateRiver(c *gin.Context) {
	var request riverRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	river, err := h.riversService.CreateRiver(c.Request.Context(), rivers.CreateRiverParams{
		Name:      request.Name,
		Slug:      request.Slug,
		Public:    request.Public,
		Layout:    request.Layout,
		AccountID: request.AccountID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, river)
}

func (h *httpHandler) handleListRivers(c *gin.Context) {
	viewerID := h.viewerID(c)
	if viewerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	listing, err := h.riversService.ListRivers(c.Request.Context(), viewerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rivers": listing})
}

func (h *httpHandler) handleSearchRivers(c *gin.Context) {
	results, err := h.riversService.SearchRivers(c.Request.Context(), c.Query("q"), h.viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if results == nil {
		results = []rivers.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *httpHandler) handleGetRiver(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireReadAccess(c, riverID); !ok {
		return
	}
	summary, err := h.riversService.GetRiverSummary(c.Request.Context(), riverID, h.viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleUpdateRiver(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}

	var request riverRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	river, err := h.riversService.UpdateRiver(c.Request.Context(), riverID, rivers.UpdateRiverParams{
		Name:   request.Name,
		Public: request.Public,
		Layout: request.Layout,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, river)
}

func (h *httpHandler) handleDeleteRiver(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	if err := h.riversService.DeleteRiver(c.Request.Context(), riverID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleExtendLifetime(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	river, err := h.riversService.ExtendLifetime(c.Request.Context(), riverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, river)
}

func (h *httpHandler) handleSetToken(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	token, err := h.riversService.SetToken(c.Request.Context(), riverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *httpHandler) handleGetDrops(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireReadAccess(c, riverID); !ok {
		return
	}

	filters := rivers.DropFilters{
		Channels: splitFilterParam(c.Query("channels")),
		Tags:     splitFilterParam(c.Query("tags")),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}
	photosOnly := c.Query("photos") == "1"
	viewerID := h.viewerID(c)

	var summaries []drops.Summary
	var err error
	if sinceParam := c.Query("since_id"); sinceParam != "" {
		sinceID, parseErr := strconv.ParseInt(sinceParam, 10, 64)
		if parseErr != nil || sinceID < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_since_id"})
			return
		}
		summaries, err = h.riversService.GetDropletsSince(c.Request.Context(), rivers.FeedSinceParams{
			ViewerID:   viewerID,
			RiverID:    riverID,
			SinceID:    sinceID,
			PhotosOnly: photosOnly,
			Filters:    filters,
			Limit:      intQuery(c, "count"),
		})
	} else {
		summaries, err = h.riversService.GetDroplets(c.Request.Context(), rivers.FeedPageParams{
			ViewerID:   viewerID,
			RiverID:    riverID,
			DropID:     int64(intQuery(c, "drop_id")),
			Page:       intQuery(c, "page"),
			MaxID:      int64(intQuery(c, "max_id")),
			PhotosOnly: photosOnly,
			Filters:    filters,
			Limit:      intQuery(c, "count"),
		})
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"droplets": summaries})
}

func (h *httpHandler) handleGetMaxDropID(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireReadAccess(c, riverID); !ok {
		return
	}
	maxID, err := h.riversService.GetMaxDropletID(c.Request.Context(), riverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"max_id": maxID})
}

func (h *httpHandler) handleGetChannels(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	infos, err := h.riversService.GetChannels(c.Request.Context(), riverID, c.Query("active") == "1")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": infos})
}

type channelRequestPayload struct {
	Channel string `json:"channel"`
}

func (h *httpHandler) handleCreateChannel(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	var request channelRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Channel) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	filter, err := h.riversService.CreateChannel(c.Request.Context(), riverID, strings.TrimSpace(request.Channel))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, filter)
}

type channelUpdatePayload struct {
	Enabled bool `json:"enabled"`
}

func (h *httpHandler) handleSetChannelEnabled(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	filterID, err := strconv.ParseInt(c.Param("filter_id"), 10, 64)
	if err != nil || filterID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter_id"})
		return
	}
	if _, err := h.riversService.GetChannelByID(c.Request.Context(), riverID, filterID); err != nil {
		h.respondError(c, err)
		return
	}

	var request channelUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.riversService.SetChannelEnabled(c.Request.Context(), filterID, request.Enabled); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type optionRequestPayload struct {
	Key   string         `json:"key"`
	Value map[string]any `json:"value"`
}

func (h *httpHandler) handleAddChannelOption(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	filterID, err := strconv.ParseInt(c.Param("filter_id"), 10, 64)
	if err != nil || filterID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter_id"})
		return
	}
	if _, err := h.riversService.GetChannelByID(c.Request.Context(), riverID, filterID); err != nil {
		h.respondError(c, err)
		return
	}

	var request optionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Key) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	option, err := h.riversService.AddChannelOption(c.Request.Context(), filterID, strings.TrimSpace(request.Key), request.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, option)
}

func (h *httpHandler) handleRemoveChannelOption(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	filterID, err := strconv.ParseInt(c.Param("filter_id"), 10, 64)
	if err != nil || filterID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter_id"})
		return
	}
	if _, err := h.riversService.GetChannelByID(c.Request.Context(), riverID, filterID); err != nil {
		h.respondError(c, err)
		return
	}
	optionID, err := strconv.ParseInt(c.Param("option_id"), 10, 64)
	if err != nil || optionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_option_id"})
		return
	}
	if err := h.riversService.RemoveChannelOption(c.Request.Context(), optionID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListCollaborators(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireReadAccess(c, riverID); !ok {
		return
	}
	collaborators, err := h.riversService.ListCollaborators(c.Request.Context(), riverID, c.Query("active") == "1")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

type collaboratorRequestPayload struct {
	UserID   int64 `json:"user_id"`
	ReadOnly bool  `json:"read_only"`
}

func (h *httpHandler) handleAddCollaborator(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	var request collaboratorRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	collaborator, err := h.riversService.AddCollaborator(c.Request.Context(), riverID, request.UserID, request.ReadOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collaborator)
}

type collaboratorUpdatePayload struct {
	Active bool `json:"active"`
}

func (h *httpHandler) handleSetCollaboratorActive(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	var request collaboratorUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.riversService.SetCollaboratorActive(c.Request.Context(), riverID, userID, request.Active); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRemoveCollaborator(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	if _, ok := h.requireOwner(c, riverID); !ok {
		return
	}
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	if err := h.riversService.RemoveCollaborator(c.Request.Context(), riverID, userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSubscribe(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	viewerID := h.viewerID(c)
	if viewerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if _, ok := h.requireReadAccess(c, riverID); !ok {
		return
	}
	if err := h.riversService.Subscribe(c.Request.Context(), riverID, viewerID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnsubscribe(c *gin.Context) {
	riverID, ok := h.riverID(c)
	if !ok {
		return
	}
	viewerID := h.viewerID(c)
	if viewerID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.riversService.Unsubscribe(c.Request.Context(), riverID, viewerID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func splitFilterParam(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func intQuery(c *gin.Context, name string) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil || value < 0 {
		return 0
	}
	return value
}
