package fulfillment

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/domain/donation"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/requests", h.CreateRequest)
	api.GET("/requests", h.ListRequests)
	api.GET("/requests/mine", h.ListMyRequests)
	api.GET("/requests/urgent", h.ListUrgentRequests)
	api.GET("/requests/stats", h.GetRequestStatistics, auth.RequireRole(auth.RoleHospital))
	api.GET("/requests/:id", h.GetRequest)
	api.PATCH("/requests/:id", h.UpdateRequest)
	api.GET("/requests/:id/matches", h.FindMatchingDonors)
	api.POST("/requests/:id/cancel", h.CancelRequest)

	donations := api.Group("/donations", auth.RequireRole(auth.RoleDonor, auth.RoleHospital))
	donations.POST("", h.CreateDonation)
	donations.GET("/mine", h.ListMyDonations)
	donations.GET("/:id", h.GetDonation)
	donations.POST("/:id/complete", h.CompleteDonation)
	donations.POST("/:id/cancel", h.CancelDonation)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
	api.DELETE("/notifications/:id", h.DeleteNotification)
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actor(c echo.Context) (Actor, error) {
	a, err := ActorFromContext(c.Request().Context())
	if err != nil {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return a, nil
}

// listFilter reads the request list query parameters.
func listFilter(c echo.Context) (request.ListFilter, error) {
	f := request.ListFilter{
		City:   strings.TrimSpace(c.QueryParam("city")),
		Search: c.QueryParam("search"),
		SortBy: c.QueryParam("sort_by"),
	}
	f.SortAsc = strings.EqualFold(c.QueryParam("sort_order"), "asc")
	if v := c.QueryParam("blood_group"); v != "" {
		g, err := bloodgroup.Parse(v)
		if err != nil {
			return f, err
		}
		f.BloodGroup = g
	}
	if v := c.QueryParam("urgency"); v != "" {
		u := request.Urgency(strings.ToUpper(v))
		if !u.Valid() {
			return f, apperr.Validation("unrecognized urgency level " + strconv.Quote(v))
		}
		f.Urgency = u
	}
	if v := c.QueryParam("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			s := request.Status(strings.ToUpper(strings.TrimSpace(part)))
			if !s.Valid() {
				return f, apperr.Validation("unrecognized status " + strconv.Quote(part))
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	return f, nil
}

// -- Requests --

func (h *Handler) CreateRequest(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in request.CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := h.svc.CreateRequest(c.Request().Context(), a, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) ListRequests(c echo.Context) error {
	f, err := listFilter(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	pg := pagination.FromContext(c)
	reqs, total, err := h.svc.ListRequests(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reqs, total, pg))
}

func (h *Handler) ListMyRequests(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	f, err := listFilter(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	pg := pagination.FromContext(c)
	reqs, total, err := h.svc.ListMyRequests(c.Request().Context(), a, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reqs, total, pg))
}

func (h *Handler) ListUrgentRequests(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	reqs, err := h.svc.ListUrgentRequests(c.Request().Context(), limit)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, reqs)
}

func (h *Handler) GetRequestStatistics(c echo.Context) error {
	stats, err := h.svc.GetRequestStatistics(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) UpdateRequest(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var in request.UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := h.svc.UpdateRequest(c.Request().Context(), a, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) FindMatchingDonors(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	cands, err := h.svc.FindMatchingDonors(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cands)
}

func (h *Handler) CancelRequest(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.CancelRequest(c.Request().Context(), a, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, req)
}

// -- Donations --

func (h *Handler) CreateDonation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in donation.CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.CreateDonation(c.Request().Context(), a, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListMyDonations(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ds, total, err := h.svc.ListMyDonations(c.Request().Context(), a, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ds, total, pg))
}

func (h *Handler) GetDonation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDonation(c.Request().Context(), a, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CompleteDonation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.RecordDonationCompletion(c.Request().Context(), a, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelDonation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.CancelDonation(c.Request().Context(), a, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Notifications --

func (h *Handler) ListNotifications(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	ns, total, err := h.svc.ListNotifications(c.Request().Context(), a, unread, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ns, total, pg))
}

func (h *Handler) MarkNotificationRead(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.MarkNotificationRead(c.Request().Context(), a, id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteNotification(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteNotification(c.Request().Context(), a, id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
