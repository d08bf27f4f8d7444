package middleware

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelic wraps every request in a New Relic transaction and puts it on the
// request's user context, where the Redis hook picks it up. A nil app is a no-op.
func NewRelic(app *newrelic.Application) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if app == nil {
			return c.Next()
		}

		txn := app.StartTransaction(c.Method() + " " + c.Path())
		defer txn.End()

		u, _ := url.Parse(c.OriginalURL())
		if u == nil {
			u = &url.URL{Path: c.Path()}
		}
		txn.SetWebRequest(newrelic.WebRequest{
			Header:    http.Header(c.GetReqHeaders()),
			URL:       u,
			Method:    c.Method(),
			Transport: newrelic.TransportHTTP,
		})
		c.SetUserContext(newrelic.NewContext(c.UserContext(), txn))

		err := c.Next()

		// Name by route pattern so /rides/:id is one transaction, not one per ride.
		if route := c.Route(); route != nil && route.Path != "" {
			txn.SetName(c.Method() + " " + route.Path)
		}
		if err != nil {
			txn.NoticeError(err)
		}
		txn.SetWebResponse(nil).WriteHeader(c.Response().StatusCode())
		return err
	}
}
