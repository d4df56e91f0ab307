package common

import (
	"embed"
	"html/template"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

var errorPage = template.Must(template.ParseFS(templateFS, "templates/error.html"))

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func bodyFor(appErr *AppError) errorBody {
	body := errorBody{Error: string(appErr.Kind)}
	// internal causes stay in the log
	if appErr.Kind != KindInternal {
		body.Message = appErr.Message
	}
	return body
}

func logFailure(c *gin.Context, appErr *AppError) {
	if appErr.Kind == KindInternal {
		Logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", appErr.Err),
		)
	}
}

// RespondJSON aborts the request with a JSON error body.
func RespondJSON(c *gin.Context, err error) {
	appErr := AsAppError(err)
	logFailure(c, appErr)
	c.AbortWithStatusJSON(appErr.Status(), bodyFor(appErr))
}

// RespondNegotiated answers JSON to clients that want JSON and not HTML, and
// an HTML error page to everyone else.
func RespondNegotiated(c *gin.Context, err error) {
	if WantsJSON(c.GetHeader("Accept")) {
		RespondJSON(c, err)
		return
	}

	appErr := AsAppError(err)
	logFailure(c, appErr)

	var sb strings.Builder
	if execErr := errorPage.Execute(&sb, gin.H{
		"Status": appErr.Status(),
		"Title":  string(appErr.Kind),
		"Body":   bodyFor(appErr).Message,
	}); execErr != nil {
		c.AbortWithStatus(appErr.Status())
		return
	}
	c.Data(appErr.Status(), "text/html; charset=utf-8", []byte(sb.String()))
	c.Abort()
}

// WantsJSON reports whether an Accept header accepts JSON but not HTML.
func WantsJSON(accept string) bool {
	return accepts(accept, "application/json") && !accepts(accept, "text/html")
}

func accepts(header, mime string) bool {
	major := strings.SplitN(mime, "/", 2)[0]
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		media := strings.ToLower(strings.TrimSpace(fields[0]))
		if media == "" || zeroQuality(fields[1:]) {
			continue
		}
		if media == mime || media == "*/*" || media == major+"/*" {
			return true
		}
	}
	return false
}

func zeroQuality(params []string) bool {
	for _, p := range params {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) == 2 && kv[0] == "q" {
			q := strings.TrimRight(strings.TrimSpace(kv[1]), "0")
			return q == "" || q == "0." || q == "0"
		}
	}
	return false
}

// NotFound and NoMethod are installed as the engine-wide fallbacks.
func NotFound(c *gin.Context) {
	RespondNegotiated(c, &AppError{Kind: KindNotFound})
}

func NoMethod(c *gin.Context) {
	RespondNegotiated(c, &AppError{Kind: KindMethodNotAllowed})
}

// Recovery turns a panic into a negotiated 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		Logger.ErrorContext(c.Request.Context(), "panic recovered", slog.Any("panic", recovered))
		RespondNegotiated(c, NewInternalError(nil))
	})
}
