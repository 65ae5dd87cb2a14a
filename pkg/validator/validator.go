package validator

import (
	"fmt"

	playground "github.com/go-playground/validator/v10"
)

// Validator validates request structs outside the gin binding path, e.g. in
// services invoked by the worker or by tests.
type Validator interface {
	Validate(interface{}) error
}

type structValidator struct {
	v *playground.Validate
}

func New() Validator {
	return &structValidator{v: playground.New()}
}

func (s *structValidator) Validate(obj interface{}) error {
	if err := s.v.Struct(obj); err != nil {
		var verrs playground.ValidationErrors
		if ok := isValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%s failed on %s", f.Field(), f.Tag())
		}
		return err
	}
	return nil
}

func isValidationErrors(err error, target *playground.ValidationErrors) bool {
	verrs, ok := err.(playground.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
