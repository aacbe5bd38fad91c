package flapjackapi

import (
	"strings"

	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/ferr"
)

// validateBody runs go-playground/validator struct-tag validation on a
// decoded request body and folds any field errors into a single
// InvalidQuery ferr, so admin/settings handlers keep the same
// {"message","status":400} envelope every other handler in this package
// returns instead of httpserver's own 422 validation envelope.
func validateBody(body any) *ferr.Error {
	errs := httpserver.Validate(body)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return ferr.InvalidQuery("validation failed: %s", strings.Join(msgs, "; "))
}
