package util

import "errors"

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrEmptyQuestion  = errors.New("empty question provided")
	ErrTranslation    = errors.New("translation failed")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
