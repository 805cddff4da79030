package feeders

import "errors"

// Static error definitions for feeders
var (
	ErrUnsupportedFormat       = errors.New("unsupported config file format")
	ErrEnvInvalidStructure     = errors.New("env: invalid structure")
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrFieldCannotBeSet        = errors.New("field cannot be set")
	ErrCannotConvert           = errors.New("cannot convert value")
)
