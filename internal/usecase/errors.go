package usecase

import "errors"

var (
	ErrInvalidItemID   = errors.New("invalid item id")
	ErrInvalidTarget   = errors.New("invalid target price")
	ErrWatchNotFound   = errors.New("watch not found")
	ErrWatchExists     = errors.New("watch already exists")
	ErrProductNotFound = errors.New("product not found")
	ErrNotAdmin        = errors.New("not an admin")
	ErrEmptyBroadcast  = errors.New("empty broadcast")
)
