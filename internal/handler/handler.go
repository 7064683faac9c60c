package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/pkg/utils"
)

// action one entry of a mutation endpoint's dispatch table. It returns the
// response payload and an optional success message for the flash queue.
type action func(c *gin.Context, rc *session.RequestContext) (data interface{}, msg string, err error)

type actionTable map[string]action

type actionEnvelope struct {
	Action string `json:"action" binding:"required"`
}

// dispatch reads the action discriminator and runs the matching entry.
// Entries re-read the body with bind.
func (t actionTable) dispatch(c *gin.Context) {
	rc := session.From(c)

	var env actionEnvelope
	if err := c.ShouldBindBodyWith(&env, binding.JSON); err != nil {
		fail(c, rc, utils.BindingError(err))
		return
	}

	fn, ok := t[env.Action]
	if !ok {
		fail(c, rc, utils.NewError(utils.CodeInvalidParam, "unknown action: "+env.Action))
		return
	}

	data, msg, err := fn(c, rc)
	if err != nil {
		fail(c, rc, err)
		return
	}
	if msg != "" {
		rc.Success(msg)
	}
	utils.Success(c, data, rc.Flash())
}

// bind decodes the JSON body into req; safe to call more than once per request
func bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		return utils.BindingError(err)
	}
	return nil
}

func respond(c *gin.Context, data interface{}) {
	utils.Success(c, data, session.From(c).Flash())
}

// fail answers with err and mirrors its message into the flash queue
func fail(c *gin.Context, rc *session.RequestContext, err error) {
	rc.Error(utils.GetErrorMessage(err))
	utils.Fail(c, err, rc.Flash())
}

func failRequest(c *gin.Context, err error) {
	fail(c, session.From(c), err)
}

func page(c *gin.Context, list interface{}, total int64, p repository.Pagination) {
	utils.Success(c, utils.PageResponse{
		List:  list,
		Total: total,
		Page:  p.Page,
		Size:  p.PageSize,
	}, session.From(c).Flash())
}

func paramID(c *gin.Context, name string) (uint64, error) {
	id, err := utils.ValidateID(c.Param(name))
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func queryID(c *gin.Context, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	id, err := utils.ValidateID(raw)
	if err != nil {
		return 0, utils.NewError(utils.CodeInvalidParam, name+" must be a positive integer")
	}
	return uint64(id), nil
}

func pagination(c *gin.Context) (repository.Pagination, error) {
	p, size, err := utils.ParsePage(c.Query("page"), c.Query("size"))
	if err != nil {
		return repository.Pagination{}, err
	}
	return repository.Pagination{Page: p, PageSize: size}, nil
}
