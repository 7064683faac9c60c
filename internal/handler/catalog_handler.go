package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/service/catalog"
	"marketplace/internal/session"
	"marketplace/pkg/utils"
)

// CatalogHandler public storefront plus trader product management
type CatalogHandler struct {
	catalogService catalog.CatalogService
	actions        actionTable
}

// NewCatalogHandler creates a catalog handler
func NewCatalogHandler(catalogService catalog.CatalogService) *CatalogHandler {
	h := &CatalogHandler{catalogService: catalogService}
	h.actions = actionTable{
		"set_stock":  h.setStock,
		"set_status": h.setStatus,
	}
	return h
}

func productFilter(c *gin.Context) (repository.ProductFilter, error) {
	p, err := pagination(c)
	if err != nil {
		return repository.ProductFilter{}, err
	}
	categoryID, err := queryID(c, "category_id")
	if err != nil {
		return repository.ProductFilter{}, err
	}
	return repository.ProductFilter{
		CategoryID: categoryID,
		Status:     c.Query("status"),
		Search:     c.Query("q"),
		Pagination: p,
	}, nil
}

// ListProducts lists active listings
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	filter, err := productFilter(c)
	if err != nil {
		failRequest(c, err)
		return
	}
	filter.Status = model.ProductStatusActive
	if filter.ShopID, err = queryID(c, "shop_id"); err != nil {
		failRequest(c, err)
		return
	}

	products, total, err := h.catalogService.ListProducts(c.Request.Context(), filter)
	if err != nil {
		failRequest(c, err)
		return
	}
	page(c, products, total, filter.Pagination)
}

// GetProduct shows one active listing
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		failRequest(c, err)
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), id)
	if err != nil {
		failRequest(c, err)
		return
	}
	if product.Status != model.ProductStatusActive {
		failRequest(c, utils.ErrProductNotFound)
		return
	}
	respond(c, product)
}

// ListCategories lists all categories
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalogService.ListCategories(c.Request.Context())
	if err != nil {
		failRequest(c, err)
		return
	}
	respond(c, categories)
}

// ListShopProducts lists the trader's own listings, inactive ones included
func (h *CatalogHandler) ListShopProducts(c *gin.Context) {
	rc := session.From(c)
	filter, err := productFilter(c)
	if err != nil {
		fail(c, rc, err)
		return
	}

	products, total, err := h.catalogService.ListShopProducts(c.Request.Context(), rc.Identity, filter)
	if err != nil {
		fail(c, rc, err)
		return
	}
	page(c, products, total, filter.Pagination)
}

// CreateProduct adds a listing to the trader's shop
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	rc := session.From(c)

	var req catalog.ProductRequest
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}

	product, err := h.catalogService.CreateProduct(c.Request.Context(), rc.Identity, &req)
	if err != nil {
		fail(c, rc, err)
		return
	}
	rc.Success("Product created")
	respond(c, product)
}

// UpdateProduct edits a listing
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	rc := session.From(c)
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, rc, err)
		return
	}

	var req catalog.ProductRequest
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}

	product, err := h.catalogService.UpdateProduct(c.Request.Context(), rc.Identity, id, &req)
	if err != nil {
		fail(c, rc, err)
		return
	}
	rc.Success("Product updated")
	respond(c, product)
}

// StockHistory lists a product's stock ledger
func (h *CatalogHandler) StockHistory(c *gin.Context) {
	rc := session.From(c)
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, rc, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.catalogService.StockHistory(c.Request.Context(), rc.Identity, id, limit)
	if err != nil {
		fail(c, rc, err)
		return
	}
	respond(c, logs)
}

// ProductAction dispatches set_stock and set_status
func (h *CatalogHandler) ProductAction(c *gin.Context) {
	h.actions.dispatch(c)
}

func (h *CatalogHandler) setStock(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req struct {
		ProductID uint64 `json:"product_id" binding:"required"`
		Quantity  *int   `json:"quantity" binding:"required,gte=0"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	product, err := h.catalogService.SetStock(c.Request.Context(), rc.Identity, req.ProductID, *req.Quantity)
	if err != nil {
		return nil, "", err
	}
	return product, "Stock updated", nil
}

func (h *CatalogHandler) setStatus(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req struct {
		ProductID uint64 `json:"product_id" binding:"required"`
		Status    string `json:"status" binding:"required,oneof=active inactive"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	product, err := h.catalogService.SetStatus(c.Request.Context(), rc.Identity, req.ProductID, req.Status)
	if err != nil {
		return nil, "", err
	}
	return product, "Product is now " + product.Status, nil
}
