package middleware

import herrors "github.com/nogards95TG/hermes-mq/errors"

// errNextCalledTwice is returned when a middleware invokes next more than
// once in the same invocation.
var errNextCalledTwice = herrors.New(herrors.CodeValidationConfig, "middleware called next() more than once")
