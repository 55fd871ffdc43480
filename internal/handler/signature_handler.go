package handler

import (
	"net/http"

	"salesflow/internal/service"
	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// SignatureHandler serves the public signing page; the token in the link is the only credential
type SignatureHandler struct {
	signatureService service.SignatureService
	documentService  service.DocumentService
}

func NewSignatureHandler(signatureService service.SignatureService, documentService service.DocumentService) *SignatureHandler {
	return &SignatureHandler{signatureService: signatureService, documentService: documentService}
}

func (h *SignatureHandler) RegisterRoutes(router *gin.RouterGroup) {
	sign := router.Group("/sign")
	{
		sign.GET("/:token", h.GetSummary)
		sign.POST("/:token", h.Sign)
		sign.GET("/:token/contract", h.DownloadContract)
	}
}

// GetSummary returns what the signer is about to sign
// @Summary      Signing summary
// @Tags         signatures
// @Produce      json
// @Param        token  path      string  true  "Signing token"
// @Success      200    {object}  response.Response{data=service.SigningSummary}
// @Failure      404    {object}  response.Response
// @Router       /api/sign/{token} [get]
func (h *SignatureHandler) GetSummary(c *gin.Context) {
	summary, err := h.signatureService.GetSigningSummary(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// Sign records the signature of the signer identified by email
// @Summary      Sign contract
// @Tags         signatures
// @Accept       json
// @Produce      json
// @Param        token    path  string               true  "Signing token"
// @Param        payload  body  service.SignRequest  true  "Signer email"
// @Success      200  {object}  response.Response{data=service.SigningSummary}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/sign/{token} [post]
func (h *SignatureHandler) Sign(c *gin.Context) {
	var req service.SignRequest
	if !bindJSON(c, &req) {
		return
	}

	summary, err := h.signatureService.Sign(c.Request.Context(), c.Param("token"), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// DownloadContract lets a signer read the contract before signing
// @Summary      Download contract to sign
// @Tags         signatures
// @Produce      application/pdf
// @Param        token  path  string  true  "Signing token"
// @Success      200  {file}    binary
// @Failure      404  {object}  response.Response
// @Router       /api/sign/{token}/contract [get]
func (h *SignatureHandler) DownloadContract(c *gin.Context) {
	doc, err := h.documentService.DownloadContractByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}

	sendDocument(c, doc)
}
