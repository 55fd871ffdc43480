package handler

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"salesflow/internal/middleware"
	"salesflow/internal/service"
	"salesflow/pkg/pagination"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type SaleHandler struct {
	saleService      service.SaleService
	signatureService service.SignatureService
	documentService  service.DocumentService
	auth             *middleware.Authenticator
}

func NewSaleHandler(
	saleService service.SaleService,
	signatureService service.SignatureService,
	documentService service.DocumentService,
	auth *middleware.Authenticator,
) *SaleHandler {
	return &SaleHandler{
		saleService:      saleService,
		signatureService: signatureService,
		documentService:  documentService,
		auth:             auth,
	}
}

func (h *SaleHandler) RegisterRoutes(router *gin.RouterGroup) {
	sales := router.Group("/sales")
	sales.Use(h.auth.RequireRole())
	{
		sales.GET("", h.ListSales)
		sales.GET("/:id", h.GetSale)
		sales.POST("", h.auth.RequireRole(salesStaff...), h.CreateSale)
		sales.PUT("/:id", h.UpdateSale)

		// role checks for status changes come from the company's workflow configuration
		sales.POST("/:id/status", h.ChangeStatus)
		sales.GET("/:id/transitions", h.GetTransitions)

		sales.POST("/:id/signatures", h.auth.RequireRole(salesStaff...), h.RequestSignatures)
		sales.POST("/:id/contract", h.auth.RequireRole(salesStaff...), h.UploadContract)
		sales.GET("/:id/contract", h.DownloadContract)
	}
}

// ListSales returns paginated sales, optionally filtered by status
// @Summary      List sales
// @Description  Sellers only see their own sales
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default: 1)"
// @Param        limit   query     int     false  "Items per page (default: 20)"
// @Param        status  query     string  false  "Filter by status tag, e.g. borrador"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/sales [get]
func (h *SaleHandler) ListSales(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	sales, total, err := h.saleService.ListSales(c.Request.Context(), actor, c.Query("status"), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, sales, p.Page, p.Limit, total))
}

// GetSale returns a sale with its beneficiaries and signatures
// @Summary      Get sale
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sale ID"
// @Success      200  {object}  response.Response{data=service.SaleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/sales/{id} [get]
func (h *SaleHandler) GetSale(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sale, err := h.saleService.GetSale(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// CreateSale opens a draft sale
// @Summary      Create sale
// @Tags         sales
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateSaleRequest  true  "Sale payload"
// @Success      201  {object}  response.Response{data=service.SaleResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/sales [post]
func (h *SaleHandler) CreateSale(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req service.CreateSaleRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.saleService.CreateSale(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, sale))
}

// UpdateSale changes sale details without touching its status
// @Summary      Update sale
// @Tags         sales
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "Sale ID"
// @Param        payload  body  service.UpdateSaleRequest  true  "Update payload"
// @Success      200  {object}  response.Response{data=service.SaleResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/sales/{id} [put]
func (h *SaleHandler) UpdateSale(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateSaleRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.saleService.UpdateSale(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// ChangeStatus moves a sale to another status if the company workflow allows it
// @Summary      Change sale status
// @Description  Rejected transitions answer 422 with the list of unmet requirements in data.reasons
// @Tags         sales
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                       true  "Sale ID"
// @Param        payload  body  service.ChangeStatusRequest  true  "Target status"
// @Success      200  {object}  response.Response{data=service.SaleResponse}
// @Failure      400  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/sales/{id}/status [post]
func (h *SaleHandler) ChangeStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ChangeStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.saleService.ChangeStatus(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// GetTransitions lists the statuses reachable from the sale's current status with a per-condition checklist
// @Summary      Available transitions
// @Tags         sales
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Sale ID"
// @Success      200  {object}  response.Response{data=service.TransitionsResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/sales/{id}/transitions [get]
func (h *SaleHandler) GetTransitions(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.saleService.AvailableTransitions(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// RequestSignatures issues a signing link and emails it to every signer
// @Summary      Request signatures
// @Tags         signatures
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                            true  "Sale ID"
// @Param        payload  body  service.RequestSignaturesRequest  true  "Signers"
// @Success      201  {object}  response.Response{data=service.SignatureRequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/sales/{id}/signatures [post]
func (h *SaleHandler) RequestSignatures(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.RequestSignaturesRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.signatureService.RequestSignatures(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// UploadContract stores the contract PDF of a sale
// @Summary      Upload contract
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "Sale ID"
// @Param        file  formData  file    true  "Contract PDF"
// @Success      200  {object}  response.Response{data=service.SaleResponse}
// @Failure      400  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /api/sales/{id}/contract [post]
func (h *SaleHandler) UploadContract(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing contract file"))
		return
	}
	if fileHeader.Size > service.MaxContractSize {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, fmt.Sprintf("Contract file exceeds %d MB", service.MaxContractSize>>20)))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, service.MaxContractSize+1))
	if err != nil {
		writeError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	sale, err := h.documentService.UploadContract(c.Request.Context(), actor, id, service.UploadContractRequest{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, sale))
}

// DownloadContract streams the stored contract PDF
// @Summary      Download contract
// @Tags         documents
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path  string  true  "Sale ID"
// @Success      200  {file}    binary
// @Failure      404  {object}  response.Response
// @Router       /api/sales/{id}/contract [get]
func (h *SaleHandler) DownloadContract(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, err := h.documentService.DownloadContract(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	sendDocument(c, doc)
}

func sendDocument(c *gin.Context, doc *service.Document) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}
