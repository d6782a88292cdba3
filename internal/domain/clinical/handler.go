package clinical

import (
	"fmt"
	"net/http"
	"strconv"

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
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/patients/:id/medical_records", h.ListPatientRecords)
	readGroup.GET("/doctors", h.ListDoctors)
	readGroup.GET("/doctors/:id", h.GetDoctor)
	readGroup.GET("/medical_records", h.ListMedicalRecords)
	readGroup.GET("/medical_records/:id", h.GetMedicalRecord)

	// Write endpoints - hospital
	writeGroup := api.Group("", auth.RequireRole(auth.RoleHospital))
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PUT("/patients/:id", h.UpdatePatient)
	writeGroup.DELETE("/patients/:id", h.DeletePatient)
	writeGroup.POST("/doctors", h.CreateDoctor)
	writeGroup.PUT("/doctors/:id", h.UpdateDoctor)
	writeGroup.DELETE("/doctors/:id", h.DeleteDoctor)
	writeGroup.POST("/medical_records", h.CreateMedicalRecord)
	writeGroup.PUT("/medical_records/:id", h.UpdateMedicalRecord)
	writeGroup.DELETE("/medical_records/:id", h.DeleteMedicalRecord)
}

func parseID(c echo.Context) (int64, error) {
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

// -- Patient --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg, c.Request().URL.Path))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := bind(c, &p); err != nil {
		return err
	}
	p.PatientID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return deleted(c, "Patient %d deleted successfully", id)
}

func (h *Handler) ListPatientRecords(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	records, err := h.svc.ListPatientRecords(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

// -- Doctor --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := bind(c, &d); err != nil {
		return err
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg, c.Request().URL.Path))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d Doctor
	if err := bind(c, &d); err != nil {
		return err
	}
	d.DoctorID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), &d); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return deleted(c, "Doctor %d deleted successfully", id)
}

// -- MedicalRecord --

func (h *Handler) CreateMedicalRecord(c echo.Context) error {
	var m MedicalRecord
	if err := bind(c, &m); err != nil {
		return err
	}
	if err := h.svc.CreateMedicalRecord(c.Request().Context(), &m); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedicalRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicalRecord(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedicalRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	records, total, err := h.svc.ListMedicalRecords(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg, c.Request().URL.Path))
}

func (h *Handler) UpdateMedicalRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var m MedicalRecord
	if err := bind(c, &m); err != nil {
		return err
	}
	m.RecordID = id
	if err := h.svc.UpdateMedicalRecord(c.Request().Context(), &m); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicalRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicalRecord(c.Request().Context(), id); err != nil {
		return err
	}
	return deleted(c, "Medical record %d deleted successfully", id)
}
