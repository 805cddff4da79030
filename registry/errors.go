package registry

import "errors"

// Static errors for registry package
var (
	ErrInvalidFactoryRef = errors.New("invalid factory reference")
	ErrFactoryDenied     = errors.New("factory module is denylisted")
	ErrFactoryNotAllowed = errors.New("factory module is not allowlisted")
	ErrFactoryUnknown    = errors.New("factory not present in catalog")
	ErrFactoryEmpty      = errors.New("factory has no constructor")
	ErrConstructorNil    = errors.New("constructor cannot be nil")
	ErrConstructorExists = errors.New("constructor already provided")
)
