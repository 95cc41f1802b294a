package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidLogin deliberately does not say whether the account or the
// password was wrong.
var ErrorInvalidLogin = errors.New("invalid username or password")
