package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxAttachmentSize = 10 * 1024 * 1024

const (
	MsgPasswordMismatch  = "Passwords do not match"
	MsgAgreeTerms        = "Please agree to all terms and conditions"
	MsgSignature         = "Please provide your signature"
	MsgCurrentPassword   = "Current password is required to set a new password"
	MsgAttachmentType    = "File must be PDF, JPG, PNG, DOC, or DOCX"
	MsgAttachmentSize    = "File size must not exceed 10 MB"
	MsgAttachmentMissing = "Please upload a purchase order or invoice document"
)

var ErrInvalid = errors.New("validation failed")

// Error reports the first failing field. It matches ErrInvalid.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrInvalid
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

type SignupForm struct {
	FirstName            string `validate:"required"`
	LastName             string `validate:"required"`
	Email                string `validate:"required,email"`
	Phone                string `validate:"required"`
	Password             string `validate:"required"`
	PasswordConfirmation string `validate:"eqfield=Password"`
	CompanyName          string `validate:"required"`
	AgreeMinOrder        bool   `validate:"eq=true"`
	AgreeNoPersonalUse   bool   `validate:"eq=true"`
	AgreeTerms           bool   `validate:"eq=true"`
	AgreeNoResell        bool   `validate:"eq=true"`
	Signature            string `validate:"notblank"`
}

// ProfileForm only checks passwords when a new one is given.
type ProfileForm struct {
	FirstName            string `validate:"required"`
	LastName             string `validate:"required"`
	Email                string `validate:"required,email"`
	CurrentPassword      string `validate:"required_with=Password"`
	Password             string
	PasswordConfirmation string `validate:"eqfield=Password"`
}

type AttachmentForm struct {
	Filename    string
	ContentType string `validate:"oneof=application/pdf image/jpeg image/jpg image/png application/msword application/vnd.openxmlformats-officedocument.wordprocessingml.document"`
	Size        int64  `validate:"gt=0,max=10485760"`
}

func Signup(form SignupForm) error {
	return check(form)
}

func Profile(form ProfileForm) error {
	return check(form)
}

// Attachment validates type and size. An empty or generic content type is
// inferred from the file extension.
func Attachment(form AttachmentForm) error {
	form.ContentType = NormalizeContentType(form.ContentType, form.Filename)
	return check(form)
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func NormalizeContentType(contentType, filename string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		if inferred, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return inferred
		}
	}
	return ct
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	fe := fieldErrs[0]
	return &Error{Field: fe.Field(), Message: message(fe)}
}

func message(fe validator.FieldError) string {
	switch fe.Field() {
	case "PasswordConfirmation":
		return MsgPasswordMismatch
	case "AgreeMinOrder", "AgreeNoPersonalUse", "AgreeTerms", "AgreeNoResell":
		return MsgAgreeTerms
	case "Signature":
		return MsgSignature
	case "CurrentPassword":
		return MsgCurrentPassword
	case "ContentType":
		return MsgAttachmentType
	case "Size":
		return MsgAttachmentSize
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Please enter a valid email address"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
