package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dzoniops/condo-booking/models"
)

const (
	defaultPerPage      = 25
	maxPerPage          = 100
	defaultCalendarDays = 90
)

// queryDate reads an optional YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, name string) (models.Date, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return models.Date{}, false, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, false, models.NewValidationError(name, "expected a date in YYYY-MM-DD form")
	}
	return d, true, nil
}

func requiredQueryDate(c *gin.Context, name string) (models.Date, error) {
	d, ok, err := queryDate(c, name)
	if err != nil {
		return models.Date{}, err
	}
	if !ok {
		return models.Date{}, models.NewValidationError(name, "is required")
	}
	return d, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(name, "expected an integer")
	}
	return n, nil
}

func paging(c *gin.Context) (page, perPage int, err error) {
	if page, err = queryInt(c, "page", 1); err != nil {
		return 0, 0, err
	}
	if perPage, err = queryInt(c, "per_page", defaultPerPage); err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return page, perPage, nil
}

// bindError turns a JSON decoding failure into a validation error so the
// client sees a 400 with the decoder's message.
func bindError(err error) error {
	return models.NewValidationError("body", err.Error())
}
