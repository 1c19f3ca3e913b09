package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSignup() SignupForm {
	return SignupForm{
		FirstName: "Ann", LastName: "Lee", Email: "ann@example.com", Phone: "555",
		Password: "secret1", PasswordConfirmation: "secret1", CompanyName: "Acme",
		AgreeMinOrder: true, AgreeNoPersonalUse: true, AgreeTerms: true, AgreeNoResell: true,
		Signature: "Ann Lee",
	}
}

func messageOf(t *testing.T, err error) string {
	t.Helper()
	var vErr *Error
	require.ErrorAs(t, err, &vErr)
	require.ErrorIs(t, err, ErrInvalid)
	return vErr.Message
}

func TestSignup(t *testing.T) {
	require.NoError(t, Signup(validSignup()))

	tests := []struct {
		name   string
		mutate func(*SignupForm)
		want   string
	}{
		{"password mismatch", func(f *SignupForm) { f.PasswordConfirmation = "other" }, MsgPasswordMismatch},
		{"missing agreement", func(f *SignupForm) { f.AgreeNoResell = false }, MsgAgreeTerms},
		{"blank signature", func(f *SignupForm) { f.Signature = "   " }, MsgSignature},
		{"missing email", func(f *SignupForm) { f.Email = "" }, "Email is required"},
		{"bad email", func(f *SignupForm) { f.Email = "nope" }, "Please enter a valid email address"},
		{"mismatch before agreements", func(f *SignupForm) {
			f.PasswordConfirmation = "x"
			f.AgreeTerms = false
		}, MsgPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validSignup()
			tt.mutate(&form)
			assert.Equal(t, tt.want, messageOf(t, Signup(form)))
		})
	}
}

func TestProfile(t *testing.T) {
	base := ProfileForm{FirstName: "Ann", LastName: "Lee", Email: "ann@example.com"}
	require.NoError(t, Profile(base))

	withPassword := base
	withPassword.Password = "new"
	withPassword.PasswordConfirmation = "new"
	assert.Equal(t, MsgCurrentPassword, messageOf(t, Profile(withPassword)))

	withPassword.CurrentPassword = "old"
	require.NoError(t, Profile(withPassword))

	withPassword.PasswordConfirmation = "typo"
	assert.Equal(t, MsgPasswordMismatch, messageOf(t, Profile(withPassword)))
}

func TestAttachment(t *testing.T) {
	require.NoError(t, Attachment(AttachmentForm{Filename: "po.pdf", ContentType: "application/pdf", Size: 1024}))
	require.NoError(t, Attachment(AttachmentForm{Filename: "scan.JPG", ContentType: "", Size: 1}))
	require.NoError(t, Attachment(AttachmentForm{Filename: "po.docx", ContentType: "application/octet-stream", Size: 1}))
	require.NoError(t, Attachment(AttachmentForm{Filename: "x", ContentType: "image/png; charset=binary", Size: MaxAttachmentSize}))

	assert.Equal(t, MsgAttachmentType,
		messageOf(t, Attachment(AttachmentForm{Filename: "a.exe", ContentType: "application/x-msdownload", Size: 10})))
	assert.Equal(t, MsgAttachmentSize,
		messageOf(t, Attachment(AttachmentForm{Filename: "a.pdf", ContentType: "application/pdf", Size: MaxAttachmentSize + 1})))
}
