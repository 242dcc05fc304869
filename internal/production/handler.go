package production

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vnglass/glassflow/internal/platform/httpx"
	"github.com/vnglass/glassflow/internal/shared"
)

// Handler exposes production endpoints as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.Get("/", h.listPlans)
		r.Post("/", h.createPlan)
		r.Get("/exists", h.planExists)
		r.Get("/{id}", h.getPlan)
		r.Delete("/{id}", h.deletePlan)
		r.Get("/{id}/products", h.listPlanProducts)
		r.Get("/{id}/materials", h.planMaterials)
		r.Get("/{id}/outputs", h.listPlanOutputs)
	})
	r.Route("/exports", func(r chi.Router) {
		r.Get("/", h.listExports)
		r.Post("/", h.createExport)
		r.Get("/{id}", h.getExport)
		r.Delete("/{id}", h.deleteExport)
	})
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/products", h.orderProducts)
		r.Get("/outputs", h.orderOutputs)
		r.Get("/exports", h.orderExports)
		r.Post("/completion", h.checkCompletion)
		r.Get("/defects", h.listDefects)
		r.Post("/defects", h.reportDefect)
	})
	r.Put("/defects/{id}", h.updateDefect)
	r.Put("/outputs/{id}/broken", h.reportBroken)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plans)
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var input CreatePlanInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input.ActorID = shared.ActorIDFromContext(r.Context())
	summary, err := h.service.CreateProductionPlan(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

func (h *Handler) planExists(w http.ResponseWriter, r *http.Request) {
	saleOrderID, err := strconv.ParseInt(r.URL.Query().Get("sale_order_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "sale_order_id must be an integer")
		return
	}
	exists, err := h.service.HasProductionPlan(r.Context(), saleOrderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) deletePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.service.DeletePlan(r.Context(), id, shared.ActorIDFromContext(r.Context())) {
		httpx.Problem(w, http.StatusNotFound, "Not Deleted", "plan does not exist or could not be removed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPlanProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	products, err := h.service.ListPlanProducts(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) planMaterials(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	materials, err := h.service.GetPlanMaterials(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) listPlanOutputs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outputs, err := h.service.ListPlanOutputs(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, outputs)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.service.ListMaterialExports(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exports)
}

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	var input CreateExportInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	input.ActorID = shared.ActorIDFromContext(r.Context())
	result, err := h.service.CreateMaterialExport(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	exp, err := h.service.GetMaterialExport(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exp)
}

func (h *Handler) deleteExport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.service.DeleteMaterialExport(r.Context(), id, shared.ActorIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		httpx.Problem(w, http.StatusNotFound, "Not Found", ErrExportNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	products, err := h.service.GetOrderProducts(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) orderOutputs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outputs, err := h.service.ListOrderOutputs(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, outputs)
}

func (h *Handler) orderExports(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	exports, err := h.service.ListMaterialExportsByOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, exports)
}

func (h *Handler) checkCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	completed, err := h.service.CheckOrderCompletion(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"completed": completed})
}

func (h *Handler) listDefects(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	defects, err := h.service.ListDefects(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, defects)
}

func (h *Handler) reportDefect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input ReportDefectInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input.OrderID = id
	input.ActorID = shared.ActorIDFromContext(r.Context())
	reported, err := h.service.ReportDefect(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !reported {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "order or output not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateDefect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input UpdateDefectInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input.DefectID = id
	input.ActorID = shared.ActorIDFromContext(r.Context())
	updated, err := h.service.UpdateDefect(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !updated {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "defect or output not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reportBroken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input ReportBrokenInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input.OutputID = id
	input.ActorID = shared.ActorIDFromContext(r.Context())
	reported, err := h.service.ReportBrokenOutput(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !reported {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "output not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := httpError(err)
	if !errors.Is(mapped, httpx.ErrValidation) && !errors.Is(mapped, httpx.ErrNotFound) && !errors.Is(mapped, httpx.ErrConflict) {
		h.logger.Error("production request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
