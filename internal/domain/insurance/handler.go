package insurance

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/healthfed/healthfed/internal/platform/auth"
	"github.com/healthfed/healthfed/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// DeleteResult is the body returned by every successful delete.
type DeleteResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func deleted(c echo.Context, format string, args ...interface{}) error {
	return c.JSON(http.StatusOK, DeleteResult{Status: "success", Message: fmt.Sprintf(format, args...)})
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints - hospital, insurance
	readGroup := api.Group("", auth.RequireRole(auth.ReadRoles...))
	readGroup.GET("/insurance_policies", h.ListPolicies)
	readGroup.GET("/insurance_policies/:id", h.GetPolicy)
	readGroup.GET("/patients/:id/insurance_policies", h.ListPatientPolicies)
	readGroup.GET("/claims", h.ListClaims)
	readGroup.GET("/claims/:id", h.GetClaim)
	readGroup.GET("/patients/:id/claims", h.ListPatientClaims)

	// Write endpoints - insurance
	writeGroup := api.Group("", auth.RequireRole(auth.RoleInsurance))
	writeGroup.POST("/insurance_policies", h.CreatePolicy)
	writeGroup.PUT("/insurance_policies/:id", h.UpdatePolicy)
	writeGroup.DELETE("/insurance_policies/:id", h.DeletePolicy)
	writeGroup.POST("/claims", h.CreateClaim)
	writeGroup.PUT("/claims/:id", h.UpdateClaim)
	writeGroup.DELETE("/claims/:id", h.DeleteClaim)
}

func keyParam(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func patientParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}

// -- Policy --

func (h *Handler) CreatePolicy(c echo.Context) error {
	var p Policy
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePolicy(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPolicy(c echo.Context) error {
	id, err := keyParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPolicy(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPolicies(c echo.Context) error {
	pg := pagination.FromContext(c)
	policies, total, err := h.svc.ListPolicies(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(policies, total, pg, c.Request().URL.Path))
}

func (h *Handler) UpdatePolicy(c echo.Context) error {
	id, err := keyParam(c)
	if err != nil {
		return err
	}
	var p Policy
	if err := bind(c, &p); err != nil {
		return err
	}
	p.PolicyID = id
	if err := h.svc.UpdatePolicy(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePolicy(c echo.Context) error {
	id, err := keyParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePolicy(c.Request().Context(), id); err != nil {
		return err
	}
	return deleted(c, "Insurance policy %s deleted successfully", id)
}

func (h *Handler) ListPatientPolicies(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	policies, err := h.svc.ListPatientPolicies(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, policies)
}

// -- Claim --

func (h *Handler) CreateClaim(c echo.Context) error {
	var cl Claim
	if err := bind(c, &cl); err != nil {
		return err
	}
	if err := h.svc.CreateClaim(c.Request().Context(), &cl); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := keyParam(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClaim(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	claims, total, err := h.svc.ListClaims(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(claims, total, pg, c.Request().URL.Path))
}

func (h *Handler) UpdateClaim(c echo.Context) error {
	id, err := keyParam(c)
	if err != nil {
		return err
	}
	var cl Claim
	if err := bind(c, &cl); err != nil {
		return err
	}
	cl.ClaimID = id
	if err := h.svc.UpdateClaim(c.Request().Context(), &cl); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) DeleteClaim(c echo.Context) error {
	id, err := keyParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteClaim(c.Request().Context(), id); err != nil {
		return err
	}
	return deleted(c, "Claim %s deleted successfully", id)
}

func (h *Handler) ListPatientClaims(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	claims, err := h.svc.ListPatientClaims(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, claims)
}
