package utils

import "net/http"

// ResponseCode business response code
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	// Request errors
	CodeInvalidParam ResponseCode = 1001
	CodeUnauthorized ResponseCode = 1002
	CodeForbidden    ResponseCode = 1003
	CodeRateLimit    ResponseCode = 1004

	// Not found
	CodeUserNotFound      ResponseCode = 2001
	CodeProductNotFound   ResponseCode = 2002
	CodeOrderNotFound     ResponseCode = 2003
	CodePromoNotFound     ResponseCode = 2004
	CodeViolationNotFound ResponseCode = 2005
	CodeShopNotFound      ResponseCode = 2006

	// Business preconditions
	CodeStockNotEnough  ResponseCode = 3001
	CodePointsNotEnough ResponseCode = 3002
	CodeInvalidState    ResponseCode = 3003
	CodePromoInvalid    ResponseCode = 3004
	CodeConflict        ResponseCode = 3005
	CodeAccountDisabled ResponseCode = 3006

	// System errors
	CodeInternalError ResponseCode = 5001
	CodeDatabaseError ResponseCode = 5002
	CodeRedisError    ResponseCode = 5003
	CodeGatewayError  ResponseCode = 5004
)

// HTTPStatus maps a response code to the HTTP status handlers answer with.
func HTTPStatus(code ResponseCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeAccountDisabled:
		return http.StatusForbidden
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeUserNotFound, CodeProductNotFound, CodeOrderNotFound,
		CodePromoNotFound, CodeViolationNotFound, CodeShopNotFound:
		return http.StatusNotFound
	case CodeStockNotEnough, CodePointsNotEnough, CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodePromoInvalid:
		return http.StatusUnprocessableEntity
	case CodeGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
