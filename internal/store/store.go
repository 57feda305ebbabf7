package store

import "errors"

var ErrNotFound = errors.New("resource not found")
var ErrNotTerminal = errors.New("only finished jobs can be archived")
