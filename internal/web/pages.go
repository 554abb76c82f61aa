// Package web renders the three pages of the sign-in protocol: the relay page that
// moves fragment credentials to the server, the loading page that finishes the
// session, and the error page.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"time"
)

// RelayTimeout is how long the relay page waits before leaving for the fallback path
const RelayTimeout = 10 * time.Second

// StorageKey is the sessionStorage key shared by the relay and loading pages
const StorageKey = "carebridge.auth.relay"

// Messages rendered by the pages
const (
	GenericErrorMessage = "An unexpected error occurred during sign-in."
	MissingTokenMessage = "Secure token missing. Please sign in again."
	InitialStatus       = "Preparing your sign-in..."
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// RelayPage is served when the credentials are only in the URL fragment
type RelayPage struct {
	// ErrorURL ends with "?error=" so the script can append the encoded message
	ErrorURL     string
	RelayURL     string
	LoadingURL   string
	FallbackPath string
	SignInURL    string
}

// LoadingPage drives the bootstrap from the browser
type LoadingPage struct {
	SessionURL string
	ErrorURL   string
	SignInURL  string
	SupportURL string
	Role       string
	Next       string
}

// ErrorPage shows a terminal sign-in failure
type ErrorPage struct {
	Message    string
	SignInURL  string
	SupportURL string
}

// SupportPath is the contact page used when no support mailbox is configured
const SupportPath = "/support"

// SupportURL builds the contact-support link
func SupportURL(email string) string {
	if email == "" {
		return SupportPath
	}
	return "mailto:" + email + "?subject=" + url.PathEscape("Sign-in problem")
}

// RenderRelay writes the relay page
func RenderRelay(w http.ResponseWriter, page RelayPage) error {
	return render(w, http.StatusOK, "relay.html", struct {
		RelayPage
		StorageKey          string
		TimeoutMillis       int64
		MissingTokenMessage string
	}{
		RelayPage:           page,
		StorageKey:          StorageKey,
		TimeoutMillis:       RelayTimeout.Milliseconds(),
		MissingTokenMessage: MissingTokenMessage,
	})
}

// RenderLoading writes the loading page
func RenderLoading(w http.ResponseWriter, page LoadingPage) error {
	return render(w, http.StatusOK, "loading.html", struct {
		LoadingPage
		StorageKey     string
		InitialStatus  string
		GenericMessage string
	}{
		LoadingPage:    page,
		StorageKey:     StorageKey,
		InitialStatus:  InitialStatus,
		GenericMessage: GenericErrorMessage,
	})
}

// RenderError writes the error page. An empty message shows the generic one.
func RenderError(w http.ResponseWriter, page ErrorPage) error {
	if page.Message == "" {
		page.Message = GenericErrorMessage
	}
	return render(w, http.StatusOK, "error.html", page)
}

// render executes into a buffer first so a template failure never leaves a half-written page
func render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
