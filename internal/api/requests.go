package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateSessionRequest starts a session.
type CreateSessionRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// ScreeningRequest submits a completed questionnaire.
type ScreeningRequest struct {
	InstrumentID string             `json:"instrument_id" validate:"required,max=64"`
	Responses    models.ResponseSet `json:"responses" validate:"required,min=1"`
}

// MessageRequest submits one chat message.
type MessageRequest struct {
	Text     string `json:"text" validate:"required,max=4000"`
	Language string `json:"language" validate:"omitempty,oneof=en hi"`
}

// decodeRequest decodes a JSON body into dst and validates its tags.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(fields, ", "))
}
