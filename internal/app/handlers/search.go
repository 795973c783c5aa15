package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/domain/search"
	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/observability/metrics"
)

// SearchService is the slice of the search orchestrator the handlers use.
type SearchService interface {
	Search(ctx context.Context, destination string, params models.SearchParams) (*models.SearchResult, error)
	Paginate(ctx context.Context, signature string, page, pageSize int) (*models.SearchResult, error)
	HotelDetails(ctx context.Context, hotelID string, params models.SearchParams) (*search.HotelDetails, error)
	StaticInfo(ctx context.Context, hotelID, language string) (*models.HotelStatic, error)
}

type SearchHandlers struct {
	svc    SearchService
	logger *zap.Logger
}

func NewSearchHandlers(svc SearchService, logger *zap.Logger) *SearchHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchHandlers{svc: svc, logger: logger}
}

// searchRequest is the typed search body. Guest counts must be JSON numbers;
// a quoted "2" fails binding rather than being coerced.
type searchRequest struct {
	Destination string              `json:"destination" binding:"required"`
	CheckIn     string              `json:"checkin" binding:"required"`
	CheckOut    string              `json:"checkout" binding:"required"`
	Guests      []models.RoomGuests `json:"guests" binding:"required"`
	Currency    string              `json:"currency"`
	Residency   string              `json:"residency"`
	Language    string              `json:"language"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
}

func searchResultBody(res *models.SearchResult) gin.H {
	return gin.H{
		"signature":    res.Signature,
		"hotel_ids":    res.HotelIDs,
		"hotels":       res.Hotels,
		"total_hotels": res.TotalHotels,
	}
}

func metaForResult(c *gin.Context, start time.Time, res *models.SearchResult) Meta {
	meta := newMeta(c, start)
	meta.FromCache = res.FromCache
	if res.FromCache {
		meta.CacheAgeSeconds = res.CacheAge.Seconds()
	}
	return meta
}

// Search handles POST /search. With an optional page the response is sliced
// from the freshly filled cache entry.
func (h *SearchHandlers) Search(c *gin.Context) {
	start := time.Now()

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}
	if req.Page < 0 || req.PageSize < 0 || req.PageSize > 100 {
		respondBadRequest(c, start, fmt.Errorf("page %d / page_size %d out of range", req.Page, req.PageSize))
		return
	}

	res, err := h.svc.Search(c.Request.Context(), req.Destination, models.SearchParams{
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Guests:    req.Guests,
		Currency:  req.Currency,
		Residency: req.Residency,
		Language:  req.Language,
	})
	if err != nil {
		respondError(c, start, err)
		return
	}

	m := metrics.Get()
	m.SearchRequestsTotal.Add(c.Request.Context(), 1)
	if res.FromCache {
		m.SearchCacheHitsTotal.Add(c.Request.Context(), 1)
	}

	if req.Page > 0 {
		res, err = h.svc.Paginate(c.Request.Context(), res.Signature, req.Page, req.PageSize)
		if err != nil {
			respondError(c, start, err)
			return
		}
	}
	respondOKMeta(c, metaForResult(c, start, res), searchResultBody(res))
}

// SearchPage handles GET /search: one page of a previously issued search,
// addressed by its signature.
func (h *SearchHandlers) SearchPage(c *gin.Context) {
	start := time.Now()

	signature := c.Query("signature")
	if signature == "" {
		respondBadRequest(c, start, fmt.Errorf("signature query parameter is required"))
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		respondBadRequest(c, start, fmt.Errorf("invalid page %q", c.Query("page")))
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(search.DefaultPageSize)))
	if err != nil || pageSize < 1 || pageSize > 100 {
		respondBadRequest(c, start, fmt.Errorf("invalid page_size %q", c.Query("page_size")))
		return
	}

	res, err := h.svc.Paginate(c.Request.Context(), signature, page, pageSize)
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOKMeta(c, metaForResult(c, start, res), searchResultBody(res))
}

// hotelDetailsRequest is the typed hotel-page body: the hotel id plus the
// stay, no destination since the hotel pins the location.
type hotelDetailsRequest struct {
	ID        string              `json:"id" binding:"required"`
	CheckIn   string              `json:"checkin" binding:"required"`
	CheckOut  string              `json:"checkout" binding:"required"`
	Guests    []models.RoomGuests `json:"guests" binding:"required"`
	Currency  string              `json:"currency"`
	Residency string              `json:"residency"`
	Language  string              `json:"language"`
}

// HotelDetails handles POST /hotel/details.
func (h *SearchHandlers) HotelDetails(c *gin.Context) {
	start := time.Now()

	var req hotelDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}

	details, err := h.svc.HotelDetails(c.Request.Context(), req.ID, models.SearchParams{
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Guests:    req.Guests,
		Currency:  req.Currency,
		Residency: req.Residency,
		Language:  req.Language,
	})
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"hotel": details})
}

type staticInfoRequest struct {
	ID       string `json:"id" binding:"required"`
	Language string `json:"language"`
}

// HotelStatic handles POST /hotel/static-info.
func (h *SearchHandlers) HotelStatic(c *gin.Context) {
	start := time.Now()

	var req staticInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}
	h.serveStatic(c, start, req.ID, req.Language)
}

// HotelStaticByID handles GET /hotel/static-info/:hid.
func (h *SearchHandlers) HotelStaticByID(c *gin.Context) {
	h.serveStatic(c, time.Now(), c.Param("hid"), c.Query("language"))
}

func (h *SearchHandlers) serveStatic(c *gin.Context, start time.Time, hotelID, language string) {
	static, err := h.svc.StaticInfo(c.Request.Context(), hotelID, language)
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"hotel": static})
}
