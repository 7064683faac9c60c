package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/session"
)

// Router groups the API handlers by the capability allowed to reach them
type Router struct {
	Auth       *AuthHandler
	Catalog    *CatalogHandler
	Cart       *CartHandler
	Promo      *PromoHandler
	Order      *OrderHandler
	Payment    *PaymentHandler
	Moderation *ModerationHandler
	Report     *ReportHandler
}

// Register mounts every route on v1. The auth middleware must already run
// on v1 so capability checks see the caller.
func (rt *Router) Register(v1 *gin.RouterGroup) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", rt.Auth.Register)
		authGroup.POST("/login", rt.Auth.Login)
		authGroup.POST("/refresh", rt.Auth.RefreshToken)
	}

	v1.GET("/products", rt.Catalog.ListProducts)
	v1.GET("/products/:id", rt.Catalog.GetProduct)
	v1.GET("/categories", rt.Catalog.ListCategories)
	v1.POST("/payments/callback", rt.Payment.Callback)

	signedIn := v1.Group("")
	signedIn.Use(middleware.RequireAuth())
	{
		signedIn.POST("/auth/logout", rt.Auth.Logout)
		signedIn.POST("/auth/change-password", rt.Auth.ChangePassword)
		signedIn.GET("/auth/me", rt.Auth.Me)
		signedIn.GET("/orders/:id", rt.Order.GetOrder)
	}

	customer := v1.Group("")
	customer.Use(middleware.RequireCapability(session.CapabilityCustomer))
	{
		customer.GET("/cart", rt.Cart.List)
		customer.DELETE("/cart", rt.Cart.Clear)
		customer.POST("/cart/items", rt.Cart.AddItem)
		customer.PUT("/cart/items/:product_id", rt.Cart.UpdateItem)
		customer.DELETE("/cart/items/:product_id", rt.Cart.RemoveItem)

		customer.POST("/promos/validate", rt.Promo.Validate)

		customer.POST("/orders", rt.Order.Checkout)
		customer.GET("/orders", rt.Order.ListMine)
		customer.POST("/orders/:id/payment/return", rt.Order.PaymentReturn)
		customer.POST("/orders/:id/payment/cancel", rt.Order.PaymentCancel)
	}

	shop := v1.Group("/shop")
	shop.Use(middleware.RequireCapability(session.CapabilityTrader))
	{
		shop.GET("/products", rt.Catalog.ListShopProducts)
		shop.POST("/products", rt.Catalog.CreateProduct)
		shop.PUT("/products/:id", rt.Catalog.UpdateProduct)
		shop.GET("/products/:id/stock", rt.Catalog.StockHistory)
		shop.POST("/products/actions", rt.Catalog.ProductAction)

		shop.GET("/orders", rt.Order.ListShop)
		shop.POST("/orders/actions", rt.Order.Action)

		shop.GET("/reports/sales", rt.Report.Sales)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireCapability(session.CapabilityAdmin))
	{
		admin.GET("/orders", rt.Order.ListAll)
		admin.POST("/orders/actions", rt.Order.Action)

		admin.GET("/promos", rt.Promo.List)
		admin.GET("/promos/:id", rt.Promo.Get)
		admin.POST("/promos/actions", rt.Promo.Action)

		admin.GET("/users", rt.Moderation.ListUsers)
		admin.GET("/violations", rt.Moderation.ListViolations)
		admin.GET("/violations/:id", rt.Moderation.GetViolation)
		admin.POST("/moderation/actions", rt.Moderation.Action)

		admin.GET("/reports/sales", rt.Report.Sales)
	}
}
