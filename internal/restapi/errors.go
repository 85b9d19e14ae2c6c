package restapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scriptroom/storyengine/internal/apierr"
)

// respondError writes err as a JSON body whose status is derived from its
// apierr.Kind (500 for anything that isn't an *apierr.Error, 404 for
// noActiveProject), mirroring the teacher's WriteAPIError helper.
func respondError(c *gin.Context, err error) {
	status := apierr.StatusFor(err)
	if errors.Is(err, errNoActiveProject) {
		status = http.StatusNotFound
	}
	kind := "Internal"
	if e, ok := apierr.As(err); ok {
		kind = e.Kind.String()
	}
	c.JSON(status, gin.H{
		"error": gin.H{
			"kind":    kind,
			"message": err.Error(),
		},
	})
}

// fail aborts the request with err, letting errorMiddleware render it.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// noActiveProject is returned by every handler that needs s.Session() when
// no project has been created or loaded yet in this server process;
// respondError renders it as 404.
func noActiveProject() error {
	return errNoActiveProject
}

var errNoActiveProject = apierr.New(apierr.InvalidOperation, "no active project — create or load one first")

// bindJSON decodes the request body into v, responding 400 on failure and
// reporting ok=false so the caller can return early.
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "InvalidOperation", "message": err.Error()}})
		c.Abort()
		return false
	}
	return true
}
