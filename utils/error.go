package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorRecomputeInProgress is returned when a commission recompute is requested
// for a store-period that is already being recomputed by another caller.
var ErrorRecomputeInProgress = errors.New("recompute already in progress for this store and fiscal month")
