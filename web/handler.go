package web

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	dbt "gogreen/db/db"
	"gogreen/ledger"
	"gogreen/routing"
	"gogreen/score"
	"gogreen/users"
)

type Handler struct {
	app *App
}

type ownerView struct {
	Username        string `json:"username"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

type routeView struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Start       dbt.Coordinate    `json:"start"`
	End         dbt.Coordinate    `json:"end"`
	DistanceKm  float64           `json:"distance_km"`
	Duration    string            `json:"duration"`
	CO2Kg       float64           `json:"co2_kg"`
	VehicleType score.VehicleType `json:"vehicle_type"`
	RouteType   score.RouteType   `json:"route_type"`
	GreenPoints int               `json:"green_points"`
	CreatedAt   time.Time         `json:"created_at"`
	Owner       *ownerView        `json:"owner,omitempty"`
}

type userView struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	ProfileImageURL string    `json:"profile_image_url"`
	GreenScore      int64     `json:"green_score"`
	Rank            int       `json:"rank,omitempty"`
}

func toRouteView(r dbt.RouteRecord) routeView {
	return routeView{
		ID:          r.ID,
		UserID:      r.UserID,
		Start:       r.Start,
		End:         r.End,
		DistanceKm:  r.DistanceKm,
		Duration:    r.Duration,
		CO2Kg:       r.CO2Kg,
		VehicleType: r.VehicleType,
		RouteType:   r.RouteType,
		GreenPoints: r.GreenPoints,
		CreatedAt:   r.CreatedAt,
	}
}

func toUserView(u dbt.UserAccount) userView {
	return userView{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
		GreenScore:      u.GreenScore,
		Rank:            u.Rank,
	}
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return dbt.DefaultListLimit
	}
	return dbt.NormalizeLimit(limit)
}

func pathUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return uuid.Nil, false
	}
	return id, true
}

// SyncUser creates or refreshes the caller's record.
func (h *Handler) SyncUser(c *gin.Context) {
	var in users.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, _ := Caller(c)
	res, err := h.app.users.Sync(c.Request.Context(), ident, in)
	switch {
	case errors.Is(err, users.ErrInvalidProfile), errors.Is(err, users.ErrInvalidIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Printf("Failed to sync user %s: %v", ident.ExternalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    toUserView(*res.User),
		"created": res.Created,
		"changes": res.Changes,
	})
}

func (h *Handler) writeUser(c *gin.Context, userID uuid.UUID) {
	user, err := h.app.users.Get(c.Request.Context(), userID)
	switch {
	case errors.Is(err, dbt.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		log.Printf("Failed to get user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
	default:
		c.JSON(http.StatusOK, toUserView(*user))
	}
}

func (h *Handler) GetMe(c *gin.Context) {
	_, userID := Caller(c)
	h.writeUser(c, userID)
}

func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	h.writeUser(c, userID)
}

func (h *Handler) writeUserRoutes(c *gin.Context, userID uuid.UUID) {
	routes, err := h.app.store.ListRoutesByUser(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		log.Printf("Failed to list routes of %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list routes"})
		return
	}
	views := make([]routeView, len(routes))
	for i, r := range routes {
		views[i] = toRouteView(r)
	}
	c.JSON(http.StatusOK, gin.H{"routes": views})
}

func (h *Handler) ListUserRoutes(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	h.writeUserRoutes(c, userID)
}

// RouteHistory lists the caller's routes, newest first.
func (h *Handler) RouteHistory(c *gin.Context) {
	_, userID := Caller(c)
	h.writeUserRoutes(c, userID)
}

// RecentRoutes lists everybody's latest routes with their owners, resolved
// in one batch through the request's data loader.
func (h *Handler) RecentRoutes(c *gin.Context) {
	ctx := c.Request.Context()
	routes, err := h.app.store.ListRecentRoutes(ctx, queryLimit(c))
	if err != nil {
		log.Printf("Failed to list recent routes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list routes"})
		return
	}

	views := make([]routeView, len(routes))
	loader, _ := c.Value(string(dbt.DataLoaderKeyUserData)).(*dbt.UserDataLoader)
	if loader == nil {
		for i, r := range routes {
			views[i] = toRouteView(r)
		}
		c.JSON(http.StatusOK, gin.H{"routes": views})
		return
	}

	thunks := make([]func() (*dbt.UserAccount, error), len(routes))
	for i, r := range routes {
		thunks[i] = loader.GetUser.LoadThunk(ctx, r.UserID)
	}
	for i, r := range routes {
		views[i] = toRouteView(r)
		owner, err := thunks[i]()
		if err != nil || owner == nil {
			continue
		}
		views[i].Owner = &ownerView{
			Username:        owner.Username,
			DisplayName:     owner.DisplayName,
			ProfileImageURL: owner.ProfileImageURL,
		}
	}
	c.JSON(http.StatusOK, gin.H{"routes": views})
}

type saveRouteRequest struct {
	Start       dbt.Coordinate `json:"start"`
	End         dbt.Coordinate `json:"end"`
	DistanceKm  float64        `json:"distance_km"`
	Duration    string         `json:"duration"`
	VehicleType string         `json:"vehicle_type" binding:"required"`
	RouteType   string         `json:"route_type" binding:"required"`
	CO2Kg       *float64       `json:"co2_kg"`
	GreenPoints *float64       `json:"green_points"`
}

const saveFailedMessage = "save failed, try again"

// SaveRoute stores a confirmed route for the caller and credits its points.
func (h *Handler) SaveRoute(c *gin.Context) {
	var req saveRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vehicle, err := score.ParseVehicleType(req.VehicleType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	routeType, err := score.ParseRouteType(req.RouteType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// points are always earned on the server, a client value is only compared
	computed := float64(score.CalculateGreenPoints(req.DistanceKm, vehicle, routeType))
	_, userID := Caller(c)
	if req.GreenPoints != nil && *req.GreenPoints != computed {
		log.Printf("Ignoring green_points %v from %s, server computed %v", *req.GreenPoints, userID, computed)
	}

	receipt, err := h.app.ledger.Save(c.Request.Context(), ledger.RouteInput{
		UserID:      userID,
		Start:       req.Start,
		End:         req.End,
		DistanceKm:  req.DistanceKm,
		Duration:    req.Duration,
		VehicleType: vehicle,
		RouteType:   routeType,
		CO2Kg:       req.CO2Kg,
		GreenPoints: &computed,
	})
	switch {
	case errors.Is(err, ledger.ErrInvalidRoute):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ledger.ErrCreditFailed):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":       saveFailedMessage,
			"route_saved": true,
			"route_id":    receipt.RouteID,
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": saveFailedMessage})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"route_id":     receipt.RouteID,
		"green_points": receipt.Points,
		"total_score":  receipt.Total,
		"created_at":   receipt.CreatedAt,
	})
}

type quoteRequest struct {
	DistanceKm  float64 `json:"distance_km" binding:"gte=0"`
	VehicleType string  `json:"vehicle_type" binding:"required"`
	RouteType   string  `json:"route_type" binding:"required"`
}

// QuoteScore scores a trip without saving it.
func (h *Handler) QuoteScore(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vehicle, err := score.ParseVehicleType(req.VehicleType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	routeType, err := score.ParseRouteType(req.RouteType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"green_points": score.CalculateGreenPoints(req.DistanceKm, vehicle, routeType),
		"co2_kg":       score.EstimateCO2(req.DistanceKm, vehicle),
	})
}

type planRequest struct {
	Start     dbt.Coordinate `json:"start"`
	End       dbt.Coordinate `json:"end"`
	RouteType string         `json:"route_type"`
	Vehicles  []string       `json:"vehicles" binding:"max=7"`
}

// PlanRoute routes the trip for each vehicle and scores every option.
func (h *Handler) PlanRoute(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	routeType := score.RouteFastest
	if req.RouteType != "" {
		parsed, err := score.ParseRouteType(req.RouteType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		routeType = parsed
	}
	vehicles := make([]score.VehicleType, 0, len(req.Vehicles))
	for _, v := range req.Vehicles {
		parsed, err := score.ParseVehicleType(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		vehicles = append(vehicles, parsed)
	}

	options, err := h.app.planner.Plan(c.Request.Context(), req.Start, req.End, routeType, vehicles)
	switch {
	case errors.Is(err, routing.ErrNoAPIKey):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "route planning is not configured"})
	case errors.Is(err, routing.ErrTooFar):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, routing.ErrNoRoute):
		c.JSON(http.StatusNotFound, gin.H{"error": "no route found"})
	case errors.Is(err, routing.ErrUnsupportedMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Printf("Route planning failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "route planning failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"options": options})
	}
}

func (h *Handler) Leaderboard(c *gin.Context) {
	top, err := h.app.board.Top(c.Request.Context(), queryLimit(c))
	if err != nil {
		log.Printf("Failed to load leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	views := make([]userView, len(top))
	for i, u := range top {
		views[i] = toUserView(u)
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}
