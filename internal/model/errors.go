package model

import "errors"

// ErrMalformedInput indicates the transaction batch failed structural
// validation (missing fields, non-positive amount, unparsable timestamp).
// Fatal: the caller should abort the run.
var ErrMalformedInput = errors.New("malformed input")

// ErrEmptyGraph indicates the batch produced a graph with no edges.
// Fatal for scoring purposes: Run returns an empty report rather than
// invoking any detector.
var ErrEmptyGraph = errors.New("empty graph")
