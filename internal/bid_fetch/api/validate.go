package api

import (
	"bid-fetch/internal/bid_fetch/model"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators adds the yyyymmdd rule to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("yyyymmdd", func(fl validator.FieldLevel) bool {
				_, err := model.ParseDate(fl.Field().String())
				return err == nil
			})
		}
	})
}

// bindMessage turns binding errors into a short readable message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body: " + err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "yyyymmdd":
			msgs = append(msgs, field+" must be a valid YYYYMMDD date")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonName(field string) string {
	switch field {
	case "Keyword":
		return "keyword"
	case "StartDate":
		return "start_date"
	case "EndDate":
		return "end_date"
	case "NumRows":
		return "num_rows"
	case "Institution":
		return "institution"
	}
	return field
}
