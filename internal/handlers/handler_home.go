package handlers

import (
	"net/http"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	"github.com/SscSPs/fin_model_app/internal/dto"
	"github.com/gin-gonic/gin"
)

// sectionFieldResponse describes one writable field of a section.
type sectionFieldResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// sectionCatalogResponse describes one section.
type sectionCatalogResponse struct {
	Section string                 `json:"section"`
	Label   string                 `json:"label"`
	Fields  []sectionFieldResponse `json:"fields"`
}

// getHome godoc
// @Summary Show the status of server.
// @Description get the status of server.
// @Tags root
// @Accept */*
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func getHome(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"message": "Financial Modeling Backend API v1"})
}

// listSections godoc
// @Summary List sections
// @Description Lists every financial data section with its writable fields
// @Tags root
// @Produce json
// @Success 200 {object} dto.SuccessResponse{data=[]sectionCatalogResponse}
// @Security BearerAuth
// @Router /sections [get]
func listSections(ctx *gin.Context) {
	schemas := domain.Sections()
	out := make([]sectionCatalogResponse, len(schemas))
	for i, s := range schemas {
		fields := make([]sectionFieldResponse, len(s.Fields))
		for j, f := range s.Fields {
			fields[j] = sectionFieldResponse{Name: f.Name, Type: string(f.Type)}
		}
		out[i] = sectionCatalogResponse{Section: s.Section, Label: s.Label, Fields: fields}
	}
	ctx.JSON(http.StatusOK, dto.OK(out))
}
