package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/logger"
)

// ListVariants returns the variant catalog with local build status.
//
// GET /api/variants/list
func (h *Handler) ListVariants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	catalog, err := h.cfg.GetOrCreateVariantCatalog()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	variants := make([]api.Variant, 0, len(catalog.Variants))
	for i := range catalog.Variants {
		variants = append(variants, h.apiVariant(ctx, &catalog.Variants[i]))
	}

	h.WriteJSON(w, http.StatusOK, api.VariantListResponse{Variants: variants})
}

// ShowVariant returns one variant by name.
//
// GET /api/variants/show?name=cuda
func (h *Handler) ShowVariant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		h.WriteError(w, http.StatusBadRequest, "name parameter is required")
		return
	}

	catalog, err := h.cfg.GetOrCreateVariantCatalog()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	spec, err := catalog.Get(name)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, h.apiVariant(r.Context(), spec))
}

// RenderVariant renders a variant's Dockerfile.
//
// POST /api/variants/render
func (h *Handler) RenderVariant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Variant == "" {
		req.Variant = h.cfg.Build.DefaultVariant
	}

	dockerfile, err := h.builder.RenderVariant(req.Variant, req.Pin)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, api.RenderResponse{
		Variant:    req.Variant,
		Dockerfile: string(dockerfile),
	})
}

// apiVariant converts a variant spec to its wire form, checking whether a
// local image exists for it.
func (h *Handler) apiVariant(ctx context.Context, spec *config.VariantSpec) api.Variant {
	image := build.ImageName(h.cfg.Build.ImageRepository, spec.Name, "")

	built := false
	if exists, err := build.ImageExists(ctx, image); err == nil {
		built = exists
	} else {
		logger.Debug("Image check for %s: %v", image, err)
	}

	v := api.Variant{
		Name:              spec.Name,
		Description:       spec.Description,
		BaseImage:         spec.BaseImage,
		FrontendImage:     spec.FrontendImage,
		RequiresGPU:       spec.RequiresGPU,
		FourBit:           spec.FourBit,
		SequentialOffload: spec.SequentialOffload,
		Built:             built,
	}
	if built {
		v.Image = image
	}
	return v
}
